package model

import "time"

// MaterializationSource identifies the proposal draft an entity was created
// from. (MessageID, Index) is unique per entity table.
type MaterializationSource struct {
	MessageID int64 `json:"message_id"`
	Index     int   `json:"index"`
}

type Milestone struct {
	ID          int64                  `json:"id"`
	GroupID     int64                  `json:"group_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	DueDate     *Date                  `json:"due_date"`
	Completed   bool                   `json:"completed"`
	Source      *MaterializationSource `json:"source,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// MilestoneFromDraft copies the draft fields verbatim; completed starts false.
func MilestoneFromDraft(groupID int64, src MaterializationSource, d MilestoneDraft) Milestone {
	return Milestone{
		GroupID:     groupID,
		Title:       d.Title,
		Description: d.Description,
		DueDate:     d.DueDate,
		Source:      &src,
	}
}

type StudySession struct {
	ID          int64                  `json:"id"`
	GroupID     int64                  `json:"group_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	StartsAt    time.Time              `json:"starts_at"`
	EndsAt      time.Time              `json:"ends_at"`
	CreatedBy   int64                  `json:"created_by"`
	Source      *MaterializationSource `json:"source,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func StudySessionFromDraft(groupID, createdBy int64, src MaterializationSource, d SessionDraft) StudySession {
	return StudySession{
		GroupID:     groupID,
		Title:       d.Title,
		Description: d.Description,
		StartsAt:    d.When,
		EndsAt:      d.End(),
		CreatedBy:   createdBy,
		Source:      &src,
	}
}
