package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/internal/model"
	"studyhub/pkg/logger"
	"studyhub/pkg/util"
)

type IntentPipeline interface {
	Handle(ctx context.Context, messageID int64) error
}

type ChatMessagePostedHandler struct {
	pipeline IntentPipeline
	logger   *zap.Logger
}

func NewChatMessagePostedHandler(pipeline IntentPipeline, logger *zap.Logger) *ChatMessagePostedHandler {
	return &ChatMessagePostedHandler{pipeline: pipeline, logger: logger}
}

// Handle consumes chat.message.posted. Payload and not-found errors are
// permanent so the delivery is dead-lettered instead of requeued.
func (h *ChatMessagePostedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ChatMessagePostedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal chat.message.posted payload", zap.Error(err))
		return util.Permanent(err)
	}
	if p.MessageID <= 0 {
		return util.Permanent(fmt.Errorf("chat.message.posted without message_id"))
	}

	logger.WithTrace(ctx, h.logger).Info("Processing chat message",
		zap.Int64("message_id", p.MessageID),
		zap.Int64("group_id", p.GroupID),
	)
	return permanentIfMissing(h.pipeline.Handle(ctx, p.MessageID))
}

func permanentIfMissing(err error) error {
	if err != nil && errors.Is(err, model.ErrNotFound) {
		return util.Permanent(err)
	}
	return err
}
