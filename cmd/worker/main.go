package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studyhub/internal/app"
	"studyhub/internal/config"
	"studyhub/pkg/logger"
	"studyhub/pkg/mq"
	"studyhub/pkg/otel"
	"studyhub/pkg/outbox"
)

const queuePrefix = "studyhub."

func main() {
	replayFailed := flag.Int("replay-failed", 0, "reset up to N failed outbox events to pending, then exit")
	flag.Parse()

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

	if *replayFailed > 0 {
		n, err := outbox.NewReplayService(c.Outbox, log).ReplayFailedEvents(ctx, *replayFailed)
		if err != nil {
			log.Fatal("Replay failed", zap.Error(err))
		}
		log.Info("Failed outbox events reset for replay", zap.Int("count", n))
		return
	}

	if cfg.Dispatch.Mode == config.DispatchLocal {
		log.Info("Dispatch mode is local, tasks run inside the api process; worker exiting")
		return
	}

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	g, gctx := errgroup.WithContext(ctx)

	for routingKey, handler := range c.Handlers() {
		queue := queuePrefix + routingKey + ".q"
		log.Info("Initializing consumer", zap.String("queue", queue))
		consumer, err := mq.NewConsumer(cfg.MQ.URL, queue, routingKey, cfg.Dispatch.Prefetch, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(handler)

		g.Go(func() error {
			return consumer.StartConsuming(gctx)
		})
	}

	g.Go(func() error {
		c.OutboxDispatcher(publisher).Start(gctx)
		return nil
	})

	if sweeper := c.GradingSweeper(publisher); sweeper != nil {
		g.Go(func() error {
			sweeper.Run(gctx, cfg.Pipeline.RegradeInterval)
			return nil
		})
	}

	log.Info("All consumers started, worker is ready to process messages")
	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", zap.Error(err))
	}
}
