// Package proposal turns a confirmed ActionProposal into milestones or
// study sessions.
package proposal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/internal/realtime"
	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
	"studyhub/pkg/rbac"
)

type MessageStore interface {
	GetMessage(ctx context.Context, id int64) (model.ChatMessage, error)
	MarkProposalConfirmed(ctx context.Context, id int64) (bool, error)
}

// MilestoneCreator and SessionCreator insert keyed on the entity's source and
// report created=false when that source was already materialized.
type MilestoneCreator interface {
	CreateFromDraft(ctx context.Context, m model.Milestone) (model.Milestone, bool, error)
}

type SessionCreator interface {
	CreateFromDraft(ctx context.Context, s model.StudySession) (model.StudySession, bool, error)
}

type Authorizer interface {
	Require(ctx context.Context, groupID, userID int64, permission string) (model.Membership, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type ConfirmRequest struct {
	GroupID   int64
	MessageID int64
	UserID    int64
	Kind      model.ActionKind
}

type ConfirmResult struct {
	Message          model.ChatMessage
	Milestones       []model.Milestone
	Sessions         []model.StudySession
	Created          int
	AlreadyConfirmed bool
}

type Materializer struct {
	messages    MessageStore
	milestones  MilestoneCreator
	sessions    SessionCreator
	auth        Authorizer
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewMaterializer(
	messages MessageStore,
	milestones MilestoneCreator,
	sessions SessionCreator,
	auth Authorizer,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *Materializer {
	return &Materializer{
		messages:    messages,
		milestones:  milestones,
		sessions:    sessions,
		auth:        auth,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Confirm materializes every draft of the proposal, then flips confirmed.
// Drafts are keyed by (message id, index) so concurrent or repeated calls
// create each entity once; only the call that flips the flag broadcasts.
func (m *Materializer) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	log := logger.WithTrace(ctx, m.logger).With(
		zap.Int64("group_id", req.GroupID),
		zap.Int64("message_id", req.MessageID),
		zap.Int64("user_id", req.UserID),
	)

	if _, err := m.auth.Require(ctx, req.GroupID, req.UserID, rbac.PermissionConfirmProposal); err != nil {
		return ConfirmResult{}, err
	}

	msg, err := m.messages.GetMessage(ctx, req.MessageID)
	if err != nil {
		return ConfirmResult{}, err
	}
	// a message of another group is reported as missing
	if msg.GroupID != req.GroupID {
		return ConfirmResult{}, fmt.Errorf("message %d: %w", req.MessageID, model.ErrNotFound)
	}
	if !msg.IsSystemAuthored() || msg.Proposal == nil || !msg.Proposal.Actionable() {
		return ConfirmResult{}, fmt.Errorf("message %d: %w", req.MessageID, model.ErrNotProposal)
	}
	p := msg.Proposal
	if p.Kind != req.Kind {
		return ConfirmResult{}, fmt.Errorf("%w: proposal is %s, request is %s", model.ErrKindMismatch, p.Kind, req.Kind)
	}

	if p.Confirmed {
		metrics.IncrementProposalConfirmed("already_confirmed")
		log.Info("Proposal already confirmed")
		return ConfirmResult{Message: msg, AlreadyConfirmed: true}, nil
	}

	var res ConfirmResult
	switch p.Kind {
	case model.ActionCreateMilestones:
		err = m.createMilestones(ctx, msg, &res)
	case model.ActionScheduleSessions:
		err = m.createSessions(ctx, msg, req.UserID, &res)
	}
	if err != nil {
		metrics.IncrementProposalConfirmed("partial")
		done := len(res.Milestones) + len(res.Sessions)
		log.Error("Materialization stopped part way",
			zap.Int("materialized", done),
			zap.Int("total", p.DraftCount()),
			zap.Error(err),
		)
		return ConfirmResult{}, &model.PartialMaterializationError{
			MessageID: msg.ID,
			Created:   done,
			Total:     p.DraftCount(),
			Err:       err,
		}
	}
	metrics.AddDraftsMaterialized(string(p.Kind), res.Created)

	flipped, err := m.messages.MarkProposalConfirmed(ctx, msg.ID)
	if err != nil {
		metrics.IncrementProposalConfirmed("partial")
		return ConfirmResult{}, &model.PartialMaterializationError{
			MessageID: msg.ID,
			Created:   p.DraftCount(),
			Total:     p.DraftCount(),
			Err:       fmt.Errorf("mark confirmed: %w", err),
		}
	}

	confirmed := *p
	confirmed.Confirmed = true
	msg.Proposal = &confirmed
	res.Message = msg

	if !flipped {
		// another request won the flag; our inserts were no-ops or theirs
		metrics.IncrementProposalConfirmed("already_confirmed")
		res.AlreadyConfirmed = true
		log.Info("Proposal confirmed concurrently", zap.Int("created", res.Created))
		return res, nil
	}

	metrics.IncrementProposalConfirmed("confirmed")
	if err := m.broadcaster.Publish(ctx, realtime.NewEvent(realtime.EventMessageUpdated, msg.GroupID, msg)); err != nil {
		log.Warn("Failed to broadcast confirmed proposal", zap.Error(err))
	}
	log.Info("Proposal confirmed",
		zap.String("action_kind", string(p.Kind)),
		zap.Int("created", res.Created),
		zap.Int("total", p.DraftCount()),
	)
	return res, nil
}

func (m *Materializer) createMilestones(ctx context.Context, msg model.ChatMessage, res *ConfirmResult) error {
	for i, d := range msg.Proposal.MilestoneDrafts {
		src := model.MaterializationSource{MessageID: msg.ID, Index: i}
		ms, created, err := m.milestones.CreateFromDraft(ctx, model.MilestoneFromDraft(msg.GroupID, src, d))
		if err != nil {
			return fmt.Errorf("milestone draft %d: %w", i, err)
		}
		if created {
			res.Created++
		}
		res.Milestones = append(res.Milestones, ms)
	}
	return nil
}

func (m *Materializer) createSessions(ctx context.Context, msg model.ChatMessage, userID int64, res *ConfirmResult) error {
	for i, d := range msg.Proposal.SessionDrafts {
		src := model.MaterializationSource{MessageID: msg.ID, Index: i}
		s, created, err := m.sessions.CreateFromDraft(ctx, model.StudySessionFromDraft(msg.GroupID, userID, src, d))
		if err != nil {
			return fmt.Errorf("session draft %d: %w", i, err)
		}
		if created {
			res.Created++
		}
		res.Sessions = append(res.Sessions, s)
	}
	return nil
}
