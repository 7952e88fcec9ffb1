package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotMember    = errors.New("not a member of this group")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrKindMismatch = errors.New("proposal kind mismatch")
	ErrNotProposal  = errors.New("message has no actionable proposal")
)

// PartialMaterializationError reports that Created of Total drafts exist and
// the proposal was left unconfirmed.
type PartialMaterializationError struct {
	MessageID int64
	Created   int
	Total     int
	Err       error
}

func (e *PartialMaterializationError) Error() string {
	return fmt.Sprintf("materialized %d of %d drafts for message %d: %v", e.Created, e.Total, e.MessageID, e.Err)
}

func (e *PartialMaterializationError) Unwrap() error {
	return e.Err
}
