// Package chat holds the conversational side of the pipeline: posting
// messages, classifying them and emitting the assistant's reply.
package chat

import (
	"context"

	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/internal/realtime"
	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
)

type SystemMessageWriter interface {
	CreateSystem(ctx context.Context, groupID int64, p model.ActionProposal) (model.ChatMessage, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

// Emitter turns a decision into a persisted system message and tells viewers.
type Emitter struct {
	store       SystemMessageWriter
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewEmitter(store SystemMessageWriter, broadcaster Broadcaster, logger *zap.Logger) *Emitter {
	return &Emitter{store: store, broadcaster: broadcaster, logger: logger}
}

// Emit returns (nil, nil) for the safe default. Otherwise the message is
// stored first and only then broadcast; a broadcast failure is logged and
// the stored message is still returned.
func (e *Emitter) Emit(ctx context.Context, groupID int64, p model.ActionProposal) (*model.ChatMessage, error) {
	log := logger.WithTrace(ctx, e.logger).With(zap.Int64("group_id", groupID))
	if p.IsSafeDefault() {
		log.Debug("Nothing to emit")
		return nil, nil
	}

	msg, err := e.store.CreateSystem(ctx, groupID, p)
	if err != nil {
		log.Error("Failed to persist system message", zap.Error(err))
		return nil, err
	}
	metrics.IncrementProposalEmitted(kindLabel(p.Kind))

	if err := e.broadcaster.Publish(ctx, realtime.NewEvent(realtime.EventNewMessage, groupID, msg)); err != nil {
		log.Warn("Failed to broadcast system message", zap.Int64("message_id", msg.ID), zap.Error(err))
	}

	log.Info("System message emitted",
		zap.Int64("message_id", msg.ID),
		zap.String("action_kind", kindLabel(p.Kind)),
		zap.Int("drafts", p.DraftCount()),
	)
	return &msg, nil
}

func kindLabel(k model.ActionKind) string {
	if k == model.ActionNone {
		return "reply"
	}
	return string(k)
}
