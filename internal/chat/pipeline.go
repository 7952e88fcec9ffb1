package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"studyhub/internal/classifier"
	"studyhub/internal/model"
	"studyhub/internal/transcript"
	"studyhub/pkg/logger"
)

const dedupHandler = "intent"

type MessageReader interface {
	GetMessage(ctx context.Context, id int64) (model.ChatMessage, error)
}

type TranscriptBuilder interface {
	Build(ctx context.Context, groupID int64, trigger model.ChatMessage) transcript.Result
}

type Decider interface {
	Decide(ctx context.Context, req classifier.IntentRequest) model.ActionProposal
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, id int64) bool
	Release(ctx context.Context, handler string, id int64)
}

// Pipeline reacts to one posted message: transcript, decision, emission.
type Pipeline struct {
	messages MessageReader
	builder  TranscriptBuilder
	decider  Decider
	emitter  *Emitter
	dedup    Deduper
	logger   *zap.Logger
}

func NewPipeline(messages MessageReader, builder TranscriptBuilder, decider Decider, emitter *Emitter, dedup Deduper, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		messages: messages,
		builder:  builder,
		decider:  decider,
		emitter:  emitter,
		dedup:    dedup,
		logger:   logger,
	}
}

// Handle runs at most one classification per message id. A failure to
// persist the reply releases the claim so a redelivery can try again.
func (p *Pipeline) Handle(ctx context.Context, messageID int64) error {
	log := logger.WithTrace(ctx, p.logger).With(zap.Int64("message_id", messageID))

	if !p.dedup.AcquireOnce(ctx, dedupHandler, messageID) {
		log.Warn("Message already classified, skipping")
		return nil
	}

	trigger, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		p.dedup.Release(ctx, dedupHandler, messageID)
		return fmt.Errorf("load trigger message: %w", err)
	}
	if trigger.IsSystemAuthored() {
		log.Debug("Ignoring system-authored message")
		return nil
	}

	tr := p.builder.Build(ctx, trigger.GroupID, trigger)
	decision := p.decider.Decide(ctx, classifier.IntentRequest{
		Transcript: tr.Transcript,
		Trigger:    tr.Trigger,
	})

	msg, err := p.emitter.Emit(ctx, trigger.GroupID, decision)
	if err != nil {
		p.dedup.Release(ctx, dedupHandler, messageID)
		return fmt.Errorf("emit reply to message %d: %w", messageID, err)
	}
	if msg == nil {
		log.Info("Assistant stayed silent")
		return nil
	}
	log.Info("Assistant replied", zap.Int64("reply_id", msg.ID))
	return nil
}
