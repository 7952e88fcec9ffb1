// Package dispatch runs event handlers in-process for single-binary
// deployments. It stands in for the broker: publishers hand it events and a
// fixed set of workers invokes the registered handler.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
	"studyhub/pkg/mq"
	"studyhub/pkg/trace"
)

var ErrClosed = errors.New("dispatch pool closed")

type job struct {
	ctx        context.Context
	routingKey string
	payload    json.RawMessage
	handler    mq.MessageHandler
}

// Pool implements mq.EventPublisher. Handlers run detached from the
// publisher's context: a finished HTTP request does not cancel its grading.
type Pool struct {
	mu       sync.RWMutex
	handlers map[string]mq.MessageHandler
	jobs     chan job
	closed   bool
	workers  int
	group    *errgroup.Group
	logger   *zap.Logger
}

func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		handlers: make(map[string]mq.MessageHandler),
		jobs:     make(chan job, queueSize),
		workers:  workers,
		group:    &errgroup.Group{},
		logger:   logger,
	}
}

// Register binds a handler to a routing key. Call before Start.
func (p *Pool) Register(routingKey string, h mq.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[routingKey] = h
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			for j := range p.jobs {
				p.run(j)
			}
			return nil
		})
	}
	p.logger.Info("Local dispatch pool started", zap.Int("workers", p.workers))
}

func (p *Pool) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	h, ok := p.handlers[routingKey]
	if !ok {
		return fmt.Errorf("no handler registered for %q", routingKey)
	}

	j := job{
		ctx:        context.WithoutCancel(trace.Ensure(ctx)),
		routingKey: routingKey,
		payload:    raw,
		handler:    h,
	}
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	return p.group.Wait()
}

func (p *Pool) run(j job) {
	start := time.Now()
	log := logger.WithTrace(j.ctx, p.logger).With(zap.String("routing_key", j.routingKey))

	status := "success"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			log.Error("Handler panicked", zap.Any("panic", r))
		}
		metrics.RecordMQConsumeLatency(j.routingKey, status, time.Since(start))
	}()

	if err := j.handler(j.ctx, j.payload); err != nil {
		status = "error"
		log.Error("Handler failed", zap.Error(err))
	}
}

func encode(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return raw, nil
}
