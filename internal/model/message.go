package model

import "time"

type MessageKind string

const (
	MessageHuman  MessageKind = "human"
	MessageSystem MessageKind = "system"
)

// ChatMessage is append-only. A system message carries a Proposal and no
// author; a human message carries Body and an author.
type ChatMessage struct {
	ID        int64           `json:"id"`
	GroupID   int64           `json:"group_id"`
	AuthorID  *int64          `json:"author_id"`
	Kind      MessageKind     `json:"kind"`
	Body      string          `json:"body,omitempty"`
	Proposal  *ActionProposal `json:"proposal,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (m ChatMessage) IsSystemAuthored() bool {
	return m.Kind == MessageSystem
}

// Text is what a reader sees: the body for humans, the reply for the assistant.
func (m ChatMessage) Text() string {
	if m.IsSystemAuthored() && m.Proposal != nil {
		return m.Proposal.ReplyText
	}
	return m.Body
}

type UserProfile struct {
	ID          int64
	DisplayName string
}
