package realtime

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventNewMessage          EventType = "new-message"
	EventMessageUpdated      EventType = "message-updated"
	EventAIFeedbackCompleted EventType = "ai-feedback-completed"
)

// Event is the envelope every viewer of a group receives.
type Event struct {
	Type    EventType `json:"type"`
	GroupID int64     `json:"group_id"`
	Data    any       `json:"data"`
	SentAt  time.Time `json:"sent_at"`
}

func NewEvent(t EventType, groupID int64, data any) Event {
	return Event{Type: t, GroupID: groupID, Data: data, SentAt: time.Now().UTC()}
}

// ChannelName is the per-group pub/sub channel.
func ChannelName(groupID int64) string {
	return fmt.Sprintf("group:%d:events", groupID)
}

// AIFeedback is the data of an ai-feedback-completed event.
type AIFeedback struct {
	SubmissionID   int64     `json:"submission_id"`
	MilestoneID    int64     `json:"milestone_id"`
	AuthorID       int64     `json:"author_id"`
	MilestoneTitle string    `json:"milestone_title"`
	Verdict        string    `json:"verdict"`
	Score          int       `json:"score"`
	GradedAt       time.Time `json:"graded_at"`
}
