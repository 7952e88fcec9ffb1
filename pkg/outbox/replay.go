package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 将失败事件重新放回 pending，交给 Dispatcher 重新发布
type ReplayService struct {
	repo   *Repository
	logger *zap.Logger
}

func NewReplayService(repo *Repository, logger *zap.Logger) *ReplayService {
	return &ReplayService{repo: repo, logger: logger}
}

// ReplayEvent requeues a single event by id.
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	if _, err := s.repo.GetEventByID(ctx, eventID); err != nil {
		return err
	}
	return s.repo.ResetForReplay(ctx, eventID)
}

// ReplayFailedEvents requeues up to limit failed events.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.repo.ResetForReplay(ctx, event.ID); err != nil {
			s.logger.Warn("Failed to requeue outbox event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		replayed++
	}

	s.logger.Info("Requeued failed outbox events",
		zap.Int("found", len(events)),
		zap.Int("requeued", replayed),
	)
	return replayed, nil
}
