package grading

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
)

type MilestoneStore interface {
	GetMilestone(ctx context.Context, id int64) (model.Milestone, error)
	MarkCompleted(ctx context.Context, id int64) (bool, error)
}

type MemberLister interface {
	ListMembers(ctx context.Context, groupID int64) ([]model.Membership, error)
}

type SubmissionLister interface {
	ListByMilestone(ctx context.Context, milestoneID int64) ([]model.MilestoneSubmission, error)
}

// Evaluator decides milestone completion from the current roster and every
// submission, with no incremental state of its own.
type Evaluator struct {
	milestones  MilestoneStore
	members     MemberLister
	submissions SubmissionLister
	logger      *zap.Logger
}

func NewEvaluator(milestones MilestoneStore, members MemberLister, submissions SubmissionLister, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		milestones:  milestones,
		members:     members,
		submissions: submissions,
		logger:      logger,
	}
}

// Evaluate reports whether this call moved the milestone to completed. A
// completed milestone is never reopened and a group with no members never
// completes.
func (e *Evaluator) Evaluate(ctx context.Context, milestoneID int64) (bool, error) {
	log := logger.WithTrace(ctx, e.logger).With(zap.Int64("milestone_id", milestoneID))

	ms, err := e.milestones.GetMilestone(ctx, milestoneID)
	if err != nil {
		return false, fmt.Errorf("load milestone: %w", err)
	}
	if ms.Completed {
		return false, nil
	}

	members, err := e.members.ListMembers(ctx, ms.GroupID)
	if err != nil {
		return false, fmt.Errorf("list members of group %d: %w", ms.GroupID, err)
	}
	subs, err := e.submissions.ListByMilestone(ctx, milestoneID)
	if err != nil {
		return false, fmt.Errorf("list submissions: %w", err)
	}

	satisfied := make(map[int64]bool)
	for _, s := range subs {
		if s.AIVerified {
			satisfied[s.AuthorID] = true
		}
	}
	missing := 0
	for _, m := range members {
		if !satisfied[m.UserID] {
			missing++
		}
	}
	if len(members) == 0 || missing > 0 {
		log.Debug("Milestone still open",
			zap.Int("members", len(members)),
			zap.Int("unsatisfied", missing),
		)
		return false, nil
	}

	flipped, err := e.milestones.MarkCompleted(ctx, milestoneID)
	if err != nil {
		return false, fmt.Errorf("mark milestone completed: %w", err)
	}
	if flipped {
		metrics.IncrementMilestoneCompleted()
		log.Info("Milestone completed", zap.Int("members", len(members)))
	}
	return flipped, nil
}
