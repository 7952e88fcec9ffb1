// Package app assembles the pipeline from configuration. Both binaries build
// one Container and pick the parts they serve.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/internal/access"
	"studyhub/internal/chat"
	"studyhub/internal/classifier"
	"studyhub/internal/config"
	"studyhub/internal/grading"
	"studyhub/internal/llm"
	"studyhub/internal/mqhandler"
	"studyhub/internal/proposal"
	"studyhub/internal/realtime"
	"studyhub/internal/repository"
	"studyhub/internal/transcript"
	"studyhub/pkg/db"
	"studyhub/pkg/mq"
	"studyhub/pkg/outbox"
	redisclient "studyhub/pkg/redis"
	"studyhub/pkg/util"
)

type Container struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Redis  *goredis.Client
	Logger *zap.Logger

	Outbox         *outbox.Repository
	Messages       *repository.MessageRepository
	SubmissionRepo *repository.SubmissionRepository
	Broadcaster    *realtime.Broadcaster
	Authorizer     *access.Authorizer

	Pipeline     *chat.Pipeline
	Materializer *proposal.Materializer
	Submissions  *grading.SubmissionService
	Grader       *grading.Grader
}

func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	pool, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	completer, err := newCompleter(ctx, cfg.LLM)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	logger.Info("Classifier backend selected", zap.String("backend", completer.Name()))

	c := &Container{Config: cfg, DB: pool, Redis: rdb, Logger: logger}

	c.Outbox = outbox.NewRepository(pool)
	c.Messages = repository.NewMessageRepository(pool, logger)
	milestones := repository.NewMilestoneRepository(pool, logger)
	sessions := repository.NewSessionRepository(pool, logger)
	submissions := repository.NewSubmissionRepository(pool, c.Outbox, logger)
	c.SubmissionRepo = submissions
	memberships := repository.NewMembershipRepository(pool)
	users := repository.NewUserRepository(pool)

	c.Broadcaster = realtime.NewBroadcaster(rdb, logger)
	c.Authorizer = access.NewAuthorizer(memberships)

	facade := classifier.NewFacade(completer, classifier.Options{
		Timeout:       cfg.LLM.Timeout,
		RatePerSecond: cfg.LLM.RatePerSecond,
		Burst:         cfg.LLM.Burst,
		Breaker:       cfg.LLM.Breaker,
	}, logger)

	builder := transcript.NewBuilder(c.Messages, users, cfg.Pipeline.TranscriptWindow, cfg.Pipeline.TranscriptLimit, logger)
	emitter := chat.NewEmitter(c.Messages, c.Broadcaster, logger)
	deduper := util.NewDeduper(rdb, cfg.Pipeline.DedupTTL, logger)
	c.Pipeline = chat.NewPipeline(c.Messages, builder, facade, emitter, deduper, logger)

	c.Materializer = proposal.NewMaterializer(c.Messages, milestones, sessions, c.Authorizer, c.Broadcaster, logger)

	evaluator := grading.NewEvaluator(milestones, memberships, submissions, logger)
	c.Grader = grading.NewGrader(submissions, milestones, facade, evaluator, c.Broadcaster, logger)
	c.Submissions = grading.NewSubmissionService(submissions, milestones, c.Authorizer, logger)

	return c, nil
}

type namedCompleter interface {
	classifier.Completer
	Name() string
}

func newCompleter(ctx context.Context, cfg config.LLMConfig) (namedCompleter, error) {
	switch cfg.Provider {
	case config.ProviderAgent:
		return llm.NewAgentClient(cfg.AgentURL, cfg.Timeout), nil
	default:
		client, err := llm.NewGenAIClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("genai: %w", err)
		}
		return client, nil
	}
}

// ChatService binds the post path to whichever publisher carries
// chat.message.posted in this deployment.
func (c *Container) ChatService(publisher mq.EventPublisher) *chat.Service {
	return chat.NewService(c.Messages, c.Authorizer, c.Broadcaster, publisher, c.Config.Pipeline.MaxMessageLength, c.Logger)
}

// Handlers maps each routing key to its task handler.
func (c *Container) Handlers() map[string]mq.MessageHandler {
	return map[string]mq.MessageHandler{
		mqcontracts.RoutingKeyChatMessagePosted: mqhandler.NewChatMessagePostedHandler(c.Pipeline, c.Logger).Handle,
		mqcontracts.RoutingKeySubmissionCreated: mqhandler.NewSubmissionCreatedHandler(c.Grader, c.Logger).Handle,
	}
}

// OutboxDispatcher relays staged events to publisher.
func (c *Container) OutboxDispatcher(publisher mq.EventPublisher) *outbox.Dispatcher {
	o := c.Config.Dispatch.Outbox
	return outbox.NewDispatcher(c.Outbox, publisher, c.Logger).
		WithInterval(o.Interval).
		WithBatchSize(o.BatchSize).
		WithMaxRetries(o.MaxRetries).
		WithLease(o.Lease)
}

// GradingSweeper returns nil when re-grading is disabled.
func (c *Container) GradingSweeper(publisher mq.EventPublisher) *grading.Sweeper {
	p := c.Config.Pipeline
	if p.RegradeInterval <= 0 {
		return nil
	}
	return grading.NewSweeper(c.SubmissionRepo, publisher, p.RegradeAfter, p.RegradeBatch, c.Logger)
}

func (c *Container) Close() {
	if err := c.Redis.Close(); err != nil {
		c.Logger.Warn("Failed to close redis", zap.Error(err))
	}
	c.DB.Close()
}
