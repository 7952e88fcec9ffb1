package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studyhub/internal/model"
	"studyhub/pkg/circuitbreaker"
	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
	"studyhub/pkg/otel"
)

const (
	useIntent = "intent"
	useGrade  = "grade"
)

// ErrUnavailable wraps every reason a classifier call produced no usable answer.
var ErrUnavailable = errors.New("classifier unavailable")

var errRateLimited = errors.New("rate limited")

// Completer is one round trip to a language model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Breaker       circuitbreaker.Config
}

// Facade is the only path to the model. Every call is bounded by Timeout and
// shares one rate limiter. Intent and grading calls trip separate breakers,
// and only transport failures count: an answer that arrives but does not
// parse falls back for that call alone.
type Facade struct {
	completer Completer
	breakers  map[string]*circuitbreaker.CircuitBreaker
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

func NewFacade(completer Completer, opts Options, logger *zap.Logger) *Facade {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Facade{
		completer: completer,
		breakers: map[string]*circuitbreaker.CircuitBreaker{
			useIntent: circuitbreaker.NewCircuitBreaker(opts.Breaker),
			useGrade:  circuitbreaker.NewCircuitBreaker(opts.Breaker),
		},
		limiter:   rate.NewLimiter(limit, opts.Burst),
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Decide never fails: any call error, timeout or malformed answer yields the
// safe default, exactly as if the model had declined.
func (f *Facade) Decide(ctx context.Context, req IntentRequest) model.ActionProposal {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	log := logger.WithTrace(ctx, f.logger)

	var decision model.ActionProposal
	err := f.call(ctx, useIntent, intentSystemPrompt, intentPrompt(req), func(raw string) error {
		p, err := parseProposal(raw)
		decision = p
		return err
	})
	if err != nil {
		log.Warn("Intent classification failed, using safe default", zap.Error(err))
		return model.SafeDefault()
	}

	decision, reason := applyPolicy(decision)
	log.Info("Intent classified",
		zap.Bool("should_respond", decision.ShouldRespond),
		zap.String("action_kind", string(decision.Kind)),
		zap.Int("drafts", decision.DraftCount()),
		zap.String("policy", reason),
	)
	return decision
}

// applyPolicy folds answers that carry nothing to say into the safe default.
func applyPolicy(p model.ActionProposal) (model.ActionProposal, string) {
	if !p.ShouldRespond {
		// an action without shouldRespond is dropped
		return model.SafeDefault(), "declined"
	}
	if !p.Actionable() && strings.TrimSpace(p.ReplyText) == "" {
		return model.SafeDefault(), "empty_reply"
	}
	p.Confirmed = false
	return p, "respond"
}

// Grade returns an error wrapping ErrUnavailable when no verdict could be
// obtained; the caller must then leave the submission untouched.
func (f *Facade) Grade(ctx context.Context, req GradeRequest) (model.GradeResult, error) {
	var result model.GradeResult
	err := f.call(ctx, useGrade, gradeSystemPrompt, gradePrompt(req), func(raw string) error {
		g, err := parseGrade(raw)
		result = g
		return err
	})
	if err != nil {
		return model.GradeResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return result, nil
}

func (f *Facade) call(parent context.Context, use, system, prompt string, decode func(string) error) error {
	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	ctx, span := otel.StartSpan(ctx, "classifier."+use)
	span.SetAttributes(attribute.Int("classifier.prompt_chars", len(prompt)))
	defer span.End()

	start := time.Now()
	err := f.limiter.Wait(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", errRateLimited, err)
	} else {
		var raw string
		err = f.breakers[use].Execute(func() error {
			var callErr error
			raw, callErr = f.completer.Complete(ctx, system, prompt)
			if callErr != nil && errors.Is(parent.Err(), context.Canceled) {
				// the caller gave up; says nothing about the model
				return circuitbreaker.Ignore(callErr)
			}
			return callErr
		})
		if err == nil {
			err = decode(raw)
		}
	}

	reason := failureReason(ctx, err)
	metrics.RecordClassifierCall(use, reason, time.Since(start))
	if err != nil {
		metrics.IncrementClassifierFallback(use, reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return err
	}
	return nil
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return "circuit_open"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
