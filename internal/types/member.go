package types

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Member はコミュニティで追跡しているメンバーの記録
type Member struct {
	UserID             snowflake.ID `json:"user_id" db:"user_id"`
	JoinDate           time.Time    `json:"join_date" db:"join_date"`
	ParticipationCount int          `json:"participation_count" db:"participation_count"`
	HostCount          int          `json:"host_count" db:"host_count"`
}

// TenureDays returns whole days between the join date and now, never negative.
func (m Member) TenureDays(now time.Time) int {
	d := now.Sub(m.JoinDate)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// ActivityEvent は1メッセージ分のアクティビティ記録（追記のみ）
type ActivityEvent struct {
	LogID      int64        `json:"log_id" db:"log_id"`
	UserID     snowflake.ID `json:"user_id" db:"user_id"`
	ChannelID  snowflake.ID `json:"channel_id" db:"channel_id"`
	CategoryID snowflake.ID `json:"category_id,omitempty" db:"category_id"` // 0 = カテゴリなし
	Timestamp  time.Time    `json:"timestamp" db:"timestamp"`
}

// ActivityCount is a per-member message count over some window.
type ActivityCount struct {
	UserID snowflake.ID `json:"user_id"`
	Count  int          `json:"count"`
}

// ActiveEvent はまだ締め切られていないイベント
type ActiveEvent struct {
	MessageID snowflake.ID `json:"message_id" db:"message_id"`
	ChannelID snowflake.ID `json:"channel_id" db:"channel_id"`
	HostID    snowflake.ID `json:"host_id" db:"host_id"`
	Title     string       `json:"title" db:"title"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
