// Package eventtracker manages reaction-signup events from creation to close.
package eventtracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/milestone"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

var (
	ErrNoReference    = errors.New("event-close must be used as a reply to the event message")
	ErrNotActiveEvent = errors.New("message is not an active event")
	ErrNotHost        = errors.New("only the event host or an administrator can close this event")
	ErrMessageDeleted = errors.New("the original event message has been deleted")
	ErrEmptyTitle     = errors.New("event title is required")
)

// HostError is returned when someone other than the host tries to close an event.
type HostError struct {
	HostID snowflake.ID
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s (host: %s)", ErrNotHost, e.HostID)
}

func (e *HostError) Is(target error) bool {
	return target == ErrNotHost
}

type Tracker struct {
	env       *app.Env
	evaluator *milestone.Evaluator
}

func NewTracker(env *app.Env, evaluator *milestone.Evaluator) *Tracker {
	return &Tracker{env: env, evaluator: evaluator}
}

// Create posts the signup message, adds the check-mark reaction and starts tracking it.
func (t *Tracker) Create(ctx context.Context, host, channelID snowflake.ID, title string) (*types.ActiveEvent, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	hostName := platform.MentionUser(host)
	if m, err := t.env.Platform.Member(ctx, host); err == nil && m.DisplayName != "" {
		hostName = m.DisplayName
	}

	content := fmt.Sprintf("🎉 **%s**\nReact with %s to participate!\nThe host will close entry when the event begins.\n*Hosted by %s*",
		title, platform.CheckMark, hostName)
	msg, err := t.env.Platform.SendMessage(ctx, channelID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to post event message: %w", err)
	}
	if err := t.env.Platform.AddReaction(ctx, channelID, msg.ID, platform.CheckMark); err != nil {
		return nil, fmt.Errorf("failed to add signup reaction: %w", err)
	}

	ev := types.ActiveEvent{
		MessageID: msg.ID,
		ChannelID: channelID,
		HostID:    host,
		Title:     title,
		CreatedAt: t.env.Clock(),
	}
	if err := t.env.Store.CreateActiveEvent(ctx, ev); err != nil {
		return nil, err
	}

	logger.Info("Event created",
		zap.Int64("message_id", int64(ev.MessageID)),
		zap.Int64("host_id", int64(host)),
		zap.String("title", title))
	t.env.Sink().Log(ctx, fmt.Sprintf("**Event Created**: %s created event '%s' in %s.",
		platform.MentionUser(host), title, platform.MentionChannel(channelID)))
	return &ev, nil
}

// CloseRequest identifies the event to close through the message the actor replied to.
type CloseRequest struct {
	Actor        snowflake.ID
	ActorIsAdmin bool
	ChannelID    snowflake.ID
	ReferenceID  snowflake.ID

	// IsAdmin is consulted only when a non-host actor is not already known to be an admin.
	IsAdmin func(ctx context.Context) (bool, error)
}

type CloseResult struct {
	Event        types.ActiveEvent
	Participants []snowflake.ID
	Milestones   *milestone.Summary
}

// Close tallies the non-bot check-mark reactors, credits them and the host, and
// stops tracking the event. Counters and the event row change in one transaction.
func (t *Tracker) Close(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	if req.ReferenceID == 0 {
		return nil, ErrNoReference
	}

	ev, err := t.env.Store.GetActiveEvent(ctx, req.ReferenceID)
	if errors.Is(err, localdb.ErrNotFound) {
		return nil, ErrNotActiveEvent
	}
	if err != nil {
		return nil, err
	}

	if req.Actor != ev.HostID && !req.ActorIsAdmin {
		admin := false
		if req.IsAdmin != nil {
			if admin, err = req.IsAdmin(ctx); err != nil {
				return nil, fmt.Errorf("failed to check actor permissions: %w", err)
			}
		}
		if !admin {
			return nil, &HostError{HostID: ev.HostID}
		}
	}

	channelID := ev.ChannelID
	if channelID == 0 {
		channelID = req.ChannelID
	}
	if _, err := t.env.Platform.FetchMessage(ctx, channelID, ev.MessageID); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, ErrMessageDeleted
		}
		return nil, err
	}

	reactors, err := t.env.Platform.Reactors(ctx, channelID, ev.MessageID, platform.CheckMark)
	if err != nil {
		return nil, fmt.Errorf("failed to list event reactions: %w", err)
	}
	participants := uniqueHumans(reactors)

	now := t.env.Clock()
	err = t.env.Store.RunInTransaction(ctx, func(tx *localdb.Store) error {
		if err := tx.IncrementHostCount(ctx, ev.HostID, now); err != nil {
			return err
		}
		for _, id := range participants {
			if err := tx.IncrementParticipation(ctx, id, now); err != nil {
				return err
			}
		}
		return tx.DeleteActiveEvent(ctx, ev.MessageID)
	})
	if errors.Is(err, localdb.ErrNotFound) {
		// 別の close が先に完了した
		return nil, ErrNotActiveEvent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record event stats: %w", err)
	}

	result := &CloseResult{Event: *ev, Participants: participants}

	if t.evaluator != nil {
		summary, err := t.evaluator.CheckParticipation(ctx, participants)
		if err != nil {
			logger.Error("Participation milestone check failed", zap.Error(err))
		}
		result.Milestones = summary
	}

	mentions := make([]string, 0, len(participants))
	for _, id := range participants {
		mentions = append(mentions, platform.MentionUser(id))
	}
	list := "None"
	if len(mentions) > 0 {
		list = strings.Join(mentions, ", ")
	}
	closed := fmt.Sprintf("**[CLOSED] %s**\nThis event is now closed. Thanks for participating!\n\n**Participants (%d):**\n%s",
		ev.Title, len(participants), list)
	if err := t.env.Platform.EditMessage(ctx, channelID, ev.MessageID, closed); err != nil {
		logger.Warn("Failed to mark event message closed", zap.Int64("message_id", int64(ev.MessageID)), zap.Error(err))
	}
	if err := t.env.Platform.ClearReactions(ctx, channelID, ev.MessageID); err != nil {
		logger.Warn("Failed to clear event reactions", zap.Int64("message_id", int64(ev.MessageID)), zap.Error(err))
	}

	logger.Info("Event closed",
		zap.Int64("message_id", int64(ev.MessageID)),
		zap.String("title", ev.Title),
		zap.Int("participants", len(participants)))
	t.env.Sink().Log(ctx, fmt.Sprintf("**Event Closed**: %s closed event '%s'. Participants: %d",
		platform.MentionUser(req.Actor), ev.Title, len(participants)))

	ids := make([]string, 0, len(participants))
	for _, id := range participants {
		ids = append(ids, id.String())
	}
	if err := t.env.Publisher().Publish(ctx, broadcast.TopicEventClosed, broadcast.EventClosed{
		MessageID:    ev.MessageID.String(),
		Title:        ev.Title,
		HostID:       ev.HostID.String(),
		ClosedBy:     req.Actor.String(),
		Participants: ids,
	}); err != nil {
		logger.Warn("Failed to publish event closed", zap.Error(err))
	}
	return result, nil
}

// List returns the events still open.
func (t *Tracker) List(ctx context.Context) ([]types.ActiveEvent, error) {
	return t.env.Store.ListActiveEvents(ctx)
}

func uniqueHumans(users []platform.User) []snowflake.ID {
	seen := make(map[snowflake.ID]bool, len(users))
	out := make([]snowflake.ID, 0, len(users))
	for _, u := range users {
		if u.Bot || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u.ID)
	}
	return out
}
