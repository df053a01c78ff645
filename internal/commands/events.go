package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ichi0g0y/alliance-bot/internal/eventtracker"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
)

func (d *Dispatcher) runEventCreate(ctx context.Context, req *Request) (string, error) {
	_, err := d.svc.Events.Create(ctx, req.Actor(), req.Msg.ChannelID, req.Args.String("title"))
	if errors.Is(err, platform.ErrPermission) {
		return "❌ **Error:** I don't have permissions to send messages or add reactions in this channel.", nil
	}
	// 成功時は告知メッセージ自体が返事になる
	return "", err
}

func (d *Dispatcher) runEventClose(ctx context.Context, req *Request) (string, error) {
	// 管理者判定はホスト以外が閉じようとしたときだけ行う
	result, err := d.svc.Events.Close(ctx, eventtracker.CloseRequest{
		Actor:       req.Actor(),
		ChannelID:   req.Msg.ChannelID,
		ReferenceID: req.Msg.ReferenceID,
		IsAdmin: func(ctx context.Context) (bool, error) {
			return d.env.Platform.HasPermission(ctx, req.Actor(), platform.PermAdministrator)
		},
	})
	var hostErr *eventtracker.HostError
	switch {
	case errors.Is(err, eventtracker.ErrNoReference):
		return "❌ **Error:** You must use this command as a **reply** to the event message you want to close.", nil
	case errors.Is(err, eventtracker.ErrNotActiveEvent):
		return "❌ **Error:** That message is not an active event that I am tracking.", nil
	case errors.As(err, &hostErr):
		return fmt.Sprintf("❌ **Error:** Only the event host (%s) or an Administrator can close this event.",
			platform.MentionUser(hostErr.HostID)), nil
	case errors.Is(err, eventtracker.ErrMessageDeleted):
		return "❌ **Error:** The original event message seems to have been deleted.", nil
	case err != nil:
		return "", err
	}

	return fmt.Sprintf("✅ Event '%s' has been closed. Stats have been updated for %d participants and 1 host.",
		result.Event.Title, len(result.Participants)), nil
}
