package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/logger"
)

// SystemSpeaker labels assistant-authored lines.
const SystemSpeaker = "AI"

const timeLayout = "2006-01-02 15:04"

type MessageSource interface {
	// RecentMessages returns at most limit messages of the group created at or
	// after since, oldest first.
	RecentMessages(ctx context.Context, groupID int64, since time.Time, limit int) ([]model.ChatMessage, error)
}

type NameSource interface {
	DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

type Builder struct {
	messages MessageSource
	names    NameSource
	window   time.Duration
	limit    int
	now      func() time.Time
	logger   *zap.Logger
}

func NewBuilder(messages MessageSource, names NameSource, window time.Duration, limit int, logger *zap.Logger) *Builder {
	return &Builder{
		messages: messages,
		names:    names,
		window:   window,
		limit:    limit,
		now:      time.Now,
		logger:   logger,
	}
}

// Result is the flattened context plus the rendered trigger line.
type Result struct {
	Transcript string
	Trigger    string
	Lines      int
}

// Build renders the recent window ending at trigger. The trigger is always
// part of the window even when older than the lookback. A store failure
// degrades to a transcript holding only the trigger.
func (b *Builder) Build(ctx context.Context, groupID int64, trigger model.ChatMessage) Result {
	log := logger.WithTrace(ctx, b.logger).With(zap.Int64("group_id", groupID))

	msgs, err := b.messages.RecentMessages(ctx, groupID, b.now().Add(-b.window), b.limit)
	if err != nil {
		log.Warn("Failed to load recent messages, continuing with trigger only", zap.Error(err))
		msgs = nil
	}
	msgs = withTrigger(msgs, trigger, b.limit)

	names := b.lookupNames(ctx, msgs, log)

	var sb strings.Builder
	var triggerLine string
	for _, m := range msgs {
		text := render(m)
		if text == "" {
			continue
		}
		line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.UTC().Format(timeLayout), speaker(m, names), text)
		if m.ID == trigger.ID {
			triggerLine = line
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return Result{
		Transcript: sb.String(),
		Trigger:    triggerLine,
		Lines:      len(msgs),
	}
}

// withTrigger drops anything newer than the trigger and makes sure the
// trigger is the last entry, trimming the oldest to respect limit.
func withTrigger(msgs []model.ChatMessage, trigger model.ChatMessage, limit int) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.ID == trigger.ID || m.CreatedAt.After(trigger.CreatedAt) {
			continue
		}
		out = append(out, m)
	}
	out = append(out, trigger)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *Builder) lookupNames(ctx context.Context, msgs []model.ChatMessage, log *zap.Logger) map[int64]string {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, m := range msgs {
		if m.AuthorID == nil {
			continue
		}
		if _, ok := seen[*m.AuthorID]; !ok {
			seen[*m.AuthorID] = struct{}{}
			ids = append(ids, *m.AuthorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	names, err := b.names.DisplayNames(ctx, ids)
	if err != nil {
		log.Warn("Failed to resolve display names", zap.Error(err))
		return nil
	}
	return names
}

func render(m model.ChatMessage) string {
	text := strings.TrimSpace(m.Text())
	if !m.IsSystemAuthored() || m.Proposal == nil || !m.Proposal.Actionable() {
		return text
	}
	state := "awaiting confirmation"
	if m.Proposal.Confirmed {
		state = "confirmed"
	}
	return strings.TrimSpace(fmt.Sprintf("%s (proposed %s x%d, %s)", text, m.Proposal.Kind, m.Proposal.DraftCount(), state))
}

func speaker(m model.ChatMessage, names map[int64]string) string {
	if m.IsSystemAuthored() {
		return SystemSpeaker
	}
	if m.AuthorID == nil {
		return "Unknown"
	}
	if name, ok := names[*m.AuthorID]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("User %d", *m.AuthorID)
}
