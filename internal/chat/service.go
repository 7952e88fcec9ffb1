package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/internal/model"
	"studyhub/internal/realtime"
	"studyhub/pkg/logger"
	"studyhub/pkg/mq"
	"studyhub/pkg/rbac"
	"studyhub/pkg/trace"
)

type HumanMessageWriter interface {
	CreateHuman(ctx context.Context, groupID, authorID int64, body string) (model.ChatMessage, error)
}

type Authorizer interface {
	Require(ctx context.Context, groupID, userID int64, permission string) (model.Membership, error)
}

type PostRequest struct {
	GroupID int64
	UserID  int64
	Body    string
}

// Service is the write path for human chat messages.
type Service struct {
	store       HumanMessageWriter
	auth        Authorizer
	broadcaster Broadcaster
	publisher   mq.EventPublisher
	maxLength   int
	logger      *zap.Logger
}

func NewService(store HumanMessageWriter, auth Authorizer, broadcaster Broadcaster, publisher mq.EventPublisher, maxLength int, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		auth:        auth,
		broadcaster: broadcaster,
		publisher:   publisher,
		maxLength:   maxLength,
		logger:      logger,
	}
}

// Post stores the message, broadcasts it and schedules classification. It
// returns once classification is enqueued, never after it ran.
func (s *Service) Post(ctx context.Context, req PostRequest) (model.ChatMessage, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("group_id", req.GroupID),
		zap.Int64("user_id", req.UserID),
	)

	if _, err := s.auth.Require(ctx, req.GroupID, req.UserID, rbac.PermissionPostMessage); err != nil {
		return model.ChatMessage{}, err
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return model.ChatMessage{}, fmt.Errorf("%w: message body is empty", model.ErrInvalidInput)
	}
	if s.maxLength > 0 && utf8.RuneCountInString(body) > s.maxLength {
		return model.ChatMessage{}, fmt.Errorf("%w: message longer than %d characters", model.ErrInvalidInput, s.maxLength)
	}

	msg, err := s.store.CreateHuman(ctx, req.GroupID, req.UserID, body)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("failed to store message: %w", err)
	}

	if err := s.broadcaster.Publish(ctx, realtime.NewEvent(realtime.EventNewMessage, req.GroupID, msg)); err != nil {
		log.Warn("Failed to broadcast new message", zap.Int64("message_id", msg.ID), zap.Error(err))
	}

	payload := mqcontracts.ChatMessagePostedPayload{
		MessageID: msg.ID,
		GroupID:   msg.GroupID,
		AuthorID:  req.UserID,
		PostedAt:  msg.CreatedAt,
		TraceID:   trace.FromContext(ctx),
	}
	if err := s.publisher.PublishWithContext(ctx, mqcontracts.RoutingKeyChatMessagePosted, payload); err != nil {
		// the message is durable; losing one classification is acceptable
		log.Error("Failed to dispatch chat.message.posted", zap.Int64("message_id", msg.ID), zap.Error(err))
	}

	log.Info("Chat message posted", zap.Int64("message_id", msg.ID))
	return msg, nil
}
