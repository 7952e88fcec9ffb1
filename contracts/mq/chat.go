package mq

import "time"

const (
	RoutingKeyChatMessagePosted = "chat.message.posted"
	RoutingKeySubmissionCreated = "submission.created"
)

// ChatMessagePostedPayload 人类消息已持久化并广播
type ChatMessagePostedPayload struct {
	MessageID int64     `json:"message_id"`
	GroupID   int64     `json:"group_id"`
	AuthorID  int64     `json:"author_id"`
	PostedAt  time.Time `json:"posted_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}
