package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

func (s *Store) CreateActiveEvent(ctx context.Context, ev types.ActiveEvent) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO active_events (message_id, channel_id, host_id, title, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		int64(ev.MessageID), int64(ev.ChannelID), int64(ev.HostID), ev.Title, toUnix(ev.CreatedAt),
	)
	if err != nil {
		logger.Error("Failed to create active event", zap.Error(err), zap.String("message_id", ev.MessageID.String()))
		return fmt.Errorf("failed to create active event: %w", err)
	}
	return nil
}

// GetActiveEvent returns ErrNotFound when messageID is not an open event.
func (s *Store) GetActiveEvent(ctx context.Context, messageID snowflake.ID) (*types.ActiveEvent, error) {
	var (
		ev                       types.ActiveEvent
		msgID, channelID, hostID int64
		createdAt                int64
	)
	err := s.ex.QueryRowContext(ctx, `
		SELECT message_id, channel_id, host_id, title, created_at
		FROM active_events WHERE message_id = ?`, int64(messageID),
	).Scan(&msgID, &channelID, &hostID, &ev.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active event: %w", err)
	}

	ev.MessageID = snowflake.ID(msgID)
	ev.ChannelID = snowflake.ID(channelID)
	ev.HostID = snowflake.ID(hostID)
	ev.CreatedAt = fromUnix(createdAt)
	return &ev, nil
}

// DeleteActiveEvent removes the event; ErrNotFound if it was already gone.
func (s *Store) DeleteActiveEvent(ctx context.Context, messageID snowflake.ID) error {
	res, err := s.ex.ExecContext(ctx, `DELETE FROM active_events WHERE message_id = ?`, int64(messageID))
	if err != nil {
		return fmt.Errorf("failed to delete active event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deleted row count: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveEvents(ctx context.Context) ([]types.ActiveEvent, error) {
	rows, err := s.ex.QueryContext(ctx, `
		SELECT message_id, channel_id, host_id, title, created_at
		FROM active_events ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active events: %w", err)
	}
	defer rows.Close()

	events := []types.ActiveEvent{}
	for rows.Next() {
		var (
			ev                       types.ActiveEvent
			msgID, channelID, hostID int64
			createdAt                int64
		)
		if err := rows.Scan(&msgID, &channelID, &hostID, &ev.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan active event: %w", err)
		}
		ev.MessageID = snowflake.ID(msgID)
		ev.ChannelID = snowflake.ID(channelID)
		ev.HostID = snowflake.ID(hostID)
		ev.CreatedAt = fromUnix(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
