package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"studyhub/internal/api"
	"studyhub/internal/app"
	"studyhub/internal/config"
	"studyhub/internal/dispatch"
	"studyhub/pkg/logger"
	"studyhub/pkg/mq"
	"studyhub/pkg/otel"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Development)
	defer log.Sync()

	shutdownTracing, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(ctx, cfg, log)
	if err != nil {
		log.Fatal("Initialization failed", zap.Error(err))
	}
	defer c.Close()

	readiness := map[string]api.ReadinessCheck{
		"db":    func(ctx context.Context) error { return c.DB.Ping(ctx) },
		"redis": func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() },
	}

	var publisher mq.EventPublisher
	switch cfg.Dispatch.Mode {
	case config.DispatchLocal:
		// single process: tasks and outbox relay run here
		pool := dispatch.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.Queue, log)
		for key, h := range c.Handlers() {
			pool.Register(key, h)
		}
		pool.Start()
		defer pool.Close()
		go c.OutboxDispatcher(pool).Start(ctx)
		if sweeper := c.GradingSweeper(pool); sweeper != nil {
			go sweeper.Run(ctx, cfg.Pipeline.RegradeInterval)
		}
		publisher = pool
	default:
		mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init publisher", zap.Error(err))
		}
		defer mqPublisher.Close()
		readiness["mq"] = func(context.Context) error {
			if !mqPublisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		}
		publisher = mqPublisher
	}

	router := api.NewRouter(api.RouterDeps{
		Chat:        api.NewChatHandler(c.ChatService(publisher), c.Materializer),
		Submissions: api.NewSubmissionHandler(c.Submissions),
		Events:      api.NewEventsHandler(c.Broadcaster, c.Authorizer),
		JWTSecret:   cfg.JWT.Secret,
		Readiness:   readiness,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("API listening", zap.String("addr", srv.Addr), zap.String("dispatch_mode", cfg.Dispatch.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
}
