package mq

import "time"

// SubmissionCreatedPayload 触发一次评分
type SubmissionCreatedPayload struct {
	SubmissionID int64     `json:"submission_id"`
	MilestoneID  int64     `json:"milestone_id"`
	GroupID      int64     `json:"group_id"`
	AuthorID     int64     `json:"author_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}
