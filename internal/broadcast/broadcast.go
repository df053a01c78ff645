// Package broadcast publishes domain events to an external bus.
package broadcast

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicAwardCycleCompleted = "alliance.award.cycle.completed"
	TopicActivityPurged      = "alliance.activity.purged"
	TopicEventClosed         = "alliance.event.closed"
	TopicMilestoneGranted    = "alliance.milestone.granted"
)

// Event types

type AwardCycleCompleted struct {
	RunID   string    `json:"run_id"`
	Tier    string    `json:"tier"`
	RanAt   time.Time `json:"ran_at"`
	Awarded int       `json:"awarded"`
	Lines   []string  `json:"lines"`
}

type ActivityPurged struct {
	Tier    string    `json:"tier"`
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

type EventClosed struct {
	MessageID    string   `json:"message_id"`
	Title        string   `json:"title"`
	HostID       string   `json:"host_id"`
	ClosedBy     string   `json:"closed_by"`
	Participants []string `json:"participants"`
}

type MilestoneGranted struct {
	Dimension string `json:"dimension"`
	MemberID  string `json:"member_id"`
	RoleID    string `json:"role_id"`
	Threshold int    `json:"threshold"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
