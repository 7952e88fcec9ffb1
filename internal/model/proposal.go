package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionNone             ActionKind = ""
	ActionScheduleSessions ActionKind = "schedule_sessions"
	ActionCreateMilestones ActionKind = "create_milestones"
)

// ParseActionKind accepts the two actionable kinds only.
func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(s); k {
	case ActionScheduleSessions, ActionCreateMilestones:
		return k, nil
	}
	return ActionNone, fmt.Errorf("%w: unknown action kind %q", ErrInvalidInput, s)
}

type SessionDraft struct {
	Title       string     `json:"title" validate:"notblank,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	When        time.Time  `json:"when" validate:"required"`
	EndsAt      *time.Time `json:"endsAt,omitempty" validate:"omitempty,gtfield=When"`
}

// End is EndsAt, or one hour after When when unset.
func (d SessionDraft) End() time.Time {
	if d.EndsAt != nil {
		return *d.EndsAt
	}
	return d.When.Add(time.Hour)
}

type MilestoneDraft struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
	DueDate     *Date  `json:"dueDate,omitempty"`
}

// ActionProposal is the structured payload of a system message. Kind selects
// which draft list is populated; ActionNone means a plain reply.
type ActionProposal struct {
	ShouldRespond   bool
	ReplyText       string
	Kind            ActionKind
	SessionDrafts   []SessionDraft
	MilestoneDrafts []MilestoneDraft
	Confirmed       bool
}

// SafeDefault is the no-op decision.
func SafeDefault() ActionProposal {
	return ActionProposal{}
}

func Reply(text string) ActionProposal {
	return ActionProposal{ShouldRespond: true, ReplyText: text}
}

func ScheduleSessions(text string, drafts []SessionDraft) ActionProposal {
	return ActionProposal{ShouldRespond: true, ReplyText: text, Kind: ActionScheduleSessions, SessionDrafts: drafts}
}

func CreateMilestones(text string, drafts []MilestoneDraft) ActionProposal {
	return ActionProposal{ShouldRespond: true, ReplyText: text, Kind: ActionCreateMilestones, MilestoneDrafts: drafts}
}

func (p ActionProposal) IsSafeDefault() bool {
	return !p.ShouldRespond
}

// Actionable reports whether confirming this proposal would create anything.
func (p ActionProposal) Actionable() bool {
	return p.Kind != ActionNone
}

// DraftCount is the length of the list selected by Kind.
func (p ActionProposal) DraftCount() int {
	switch p.Kind {
	case ActionScheduleSessions:
		return len(p.SessionDrafts)
	case ActionCreateMilestones:
		return len(p.MilestoneDrafts)
	}
	return 0
}

var errDraftShape = errors.New("actionKind must match exactly one non-empty draft list")

// Validate checks the tagged-union shape: no kind means no drafts, and a kind
// means only its own list is populated.
func (p ActionProposal) Validate() error {
	switch p.Kind {
	case ActionNone:
		if p.SessionDrafts != nil || p.MilestoneDrafts != nil {
			return fmt.Errorf("%w: drafts without actionKind", errDraftShape)
		}
	case ActionScheduleSessions:
		if len(p.SessionDrafts) == 0 || p.MilestoneDrafts != nil {
			return fmt.Errorf("%w: %s", errDraftShape, p.Kind)
		}
	case ActionCreateMilestones:
		if len(p.MilestoneDrafts) == 0 || p.SessionDrafts != nil {
			return fmt.Errorf("%w: %s", errDraftShape, p.Kind)
		}
	default:
		return fmt.Errorf("unknown actionKind %q", p.Kind)
	}
	return nil
}

type proposalWire struct {
	ShouldRespond   bool             `json:"shouldRespond"`
	ReplyText       string           `json:"replyText"`
	ActionKind      *string          `json:"actionKind"`
	SessionDrafts   []SessionDraft   `json:"sessionDrafts"`
	MilestoneDrafts []MilestoneDraft `json:"milestoneDrafts"`
	Confirmed       bool             `json:"confirmed"`
}

func (p ActionProposal) MarshalJSON() ([]byte, error) {
	w := proposalWire{
		ShouldRespond:   p.ShouldRespond,
		ReplyText:       p.ReplyText,
		SessionDrafts:   p.SessionDrafts,
		MilestoneDrafts: p.MilestoneDrafts,
		Confirmed:       p.Confirmed,
	}
	if p.Kind != ActionNone {
		k := string(p.Kind)
		w.ActionKind = &k
	}
	return json.Marshal(w)
}

// UnmarshalJSON rejects payloads that break the tagged-union shape. An empty
// list for the inactive kind is treated as null.
func (p *ActionProposal) UnmarshalJSON(b []byte) error {
	var w proposalWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	out := ActionProposal{
		ShouldRespond:   w.ShouldRespond,
		ReplyText:       w.ReplyText,
		SessionDrafts:   w.SessionDrafts,
		MilestoneDrafts: w.MilestoneDrafts,
		Confirmed:       w.Confirmed,
	}
	if w.ActionKind != nil && *w.ActionKind != "" {
		out.Kind = ActionKind(*w.ActionKind)
	}
	if out.Kind != ActionScheduleSessions && len(out.SessionDrafts) == 0 {
		out.SessionDrafts = nil
	}
	if out.Kind != ActionCreateMilestones && len(out.MilestoneDrafts) == 0 {
		out.MilestoneDrafts = nil
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*p = out
	return nil
}
