package grading

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/pkg/mq"
	"studyhub/pkg/trace"
)

type PendingLister interface {
	PendingGrading(ctx context.Context, before time.Time, limit int) ([]mqcontracts.SubmissionCreatedPayload, error)
	MarkRegradeRequested(ctx context.Context, ids []int64, at time.Time) error
}

// Sweeper re-requests grading for submissions that stayed pending, e.g.
// because the classifier timed out on the first pass.
type Sweeper struct {
	pending   PendingLister
	publisher mq.EventPublisher
	minAge    time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func NewSweeper(pending PendingLister, publisher mq.EventPublisher, minAge time.Duration, batchSize int, logger *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Sweeper{
		pending:   pending,
		publisher: publisher,
		minAge:    minAge,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
	}
}

// SweepOnce publishes one submission.created per pending submission older
// than minAge and returns how many were published.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	pending, err := s.pending.PendingGrading(ctx, now.Add(-s.minAge), s.batchSize)
	if err != nil {
		return 0, err
	}

	var requested []int64
	for _, p := range pending {
		p.TraceID = trace.GenerateTraceID()
		if err := s.publisher.PublishWithContext(trace.WithContext(ctx, p.TraceID), mqcontracts.RoutingKeySubmissionCreated, p); err != nil {
			s.logger.Warn("Failed to re-request grading",
				zap.Int64("submission_id", p.SubmissionID),
				zap.Error(err),
			)
			continue
		}
		requested = append(requested, p.SubmissionID)
	}
	if len(requested) == 0 {
		return 0, nil
	}

	if err := s.pending.MarkRegradeRequested(ctx, requested, now); err != nil {
		// the same rows come back first next sweep
		s.logger.Warn("Failed to stamp re-requested submissions", zap.Error(err))
	}
	s.logger.Info("Pending submissions re-queued for grading", zap.Int("count", len(requested)))
	return len(requested), nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Grading sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Grading sweep failed", zap.Error(err))
			}
		}
	}
}
