// Package grading scores milestone submissions and decides milestone
// completion.
package grading

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"studyhub/internal/classifier"
	"studyhub/internal/model"
	"studyhub/internal/realtime"
	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
)

type SubmissionStore interface {
	GetSubmission(ctx context.Context, id int64) (model.MilestoneSubmission, error)
	RecordGrade(ctx context.Context, id int64, g model.GradeResult, gradedAt time.Time) error
}

type MilestoneReader interface {
	GetMilestone(ctx context.Context, id int64) (model.Milestone, error)
}

type GradeClassifier interface {
	Grade(ctx context.Context, req classifier.GradeRequest) (model.GradeResult, error)
}

type CompletionEvaluator interface {
	Evaluate(ctx context.Context, milestoneID int64) (bool, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type Grader struct {
	submissions SubmissionStore
	milestones  MilestoneReader
	classifier  GradeClassifier
	evaluator   CompletionEvaluator
	broadcaster Broadcaster
	now         func() time.Time
	logger      *zap.Logger
}

func NewGrader(
	submissions SubmissionStore,
	milestones MilestoneReader,
	grader GradeClassifier,
	evaluator CompletionEvaluator,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *Grader {
	return &Grader{
		submissions: submissions,
		milestones:  milestones,
		classifier:  grader,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		now:         time.Now,
		logger:      logger,
	}
}

// Grade runs one grading pass. When the classifier gives no verdict the
// submission stays pending and completion is not re-evaluated; that is not
// an error. Store failures are returned so the task can be retried.
func (g *Grader) Grade(ctx context.Context, submissionID int64) error {
	log := logger.WithTrace(ctx, g.logger).With(zap.Int64("submission_id", submissionID))

	sub, err := g.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	ms, err := g.milestones.GetMilestone(ctx, sub.MilestoneID)
	if err != nil {
		return fmt.Errorf("load milestone: %w", err)
	}

	result, err := g.classifier.Grade(ctx, classifier.GradeRequest{
		MilestoneTitle:       ms.Title,
		MilestoneDescription: ms.Description,
		Content:              sub.Content,
		Files:                sub.Files,
	})
	if err != nil {
		metrics.IncrementGrading("pending")
		log.Warn("No verdict, submission stays pending", zap.Error(err))
		return nil
	}

	gradedAt := g.now().UTC()
	if err := g.submissions.RecordGrade(ctx, sub.ID, result, gradedAt); err != nil {
		return fmt.Errorf("record grade: %w", err)
	}
	metrics.IncrementGrading(result.Verdict())
	log.Info("Submission graded",
		zap.Int64("milestone_id", ms.ID),
		zap.String("verdict", result.Verdict()),
		zap.Int("score", result.Score),
	)

	feedback := realtime.AIFeedback{
		SubmissionID:   sub.ID,
		MilestoneID:    ms.ID,
		AuthorID:       sub.AuthorID,
		MilestoneTitle: ms.Title,
		Verdict:        result.Verdict(),
		Score:          result.Score,
		GradedAt:       gradedAt,
	}
	if err := g.broadcaster.Publish(ctx, realtime.NewEvent(realtime.EventAIFeedbackCompleted, ms.GroupID, feedback)); err != nil {
		log.Warn("Failed to broadcast grading feedback", zap.Error(err))
	}

	if _, err := g.evaluator.Evaluate(ctx, ms.ID); err != nil {
		return fmt.Errorf("evaluate completion: %w", err)
	}
	return nil
}
