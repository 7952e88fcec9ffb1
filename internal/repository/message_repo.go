package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/otel"
)

const messageColumns = `id, group_id, author_id, kind, body, proposal, created_at`

type MessageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMessageRepository(db *pgxpool.Pool, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger}
}

// CreateHuman appends a message written by a group member.
func (r *MessageRepository) CreateHuman(ctx context.Context, groupID, authorID int64, body string) (model.ChatMessage, error) {
	query := `
        INSERT INTO chat_messages (group_id, author_id, kind, body)
        VALUES ($1, $2, 'human', $3)
        RETURNING ` + messageColumns

	msg, err := scanMessage(r.db.QueryRow(ctx, query, groupID, authorID, body))
	if err != nil {
		r.logger.Error("Failed to insert chat message", zap.Int64("group_id", groupID), zap.Error(err))
		return model.ChatMessage{}, err
	}
	return msg, nil
}

// CreateSystem appends an assistant message carrying the proposal as jsonb.
func (r *MessageRepository) CreateSystem(ctx context.Context, groupID int64, p model.ActionProposal) (model.ChatMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("marshal proposal: %w", err)
	}

	query := `
        INSERT INTO chat_messages (group_id, kind, body, proposal)
        VALUES ($1, 'system', $2, $3)
        RETURNING ` + messageColumns

	var msg model.ChatMessage
	err = otel.Traced(ctx, "insert_system_message", query, func(ctx context.Context) error {
		var err error
		msg, err = scanMessage(r.db.QueryRow(ctx, query, groupID, p.ReplyText, raw))
		return err
	})
	if err != nil {
		r.logger.Error("Failed to insert system message", zap.Int64("group_id", groupID), zap.Error(err))
		return model.ChatMessage{}, err
	}
	return msg, nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, id int64) (model.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return model.ChatMessage{}, notFound(err, fmt.Sprintf("message %d", id))
	}
	return msg, nil
}

// RecentMessages keeps the newest limit rows inside the window and returns
// them oldest first.
func (r *MessageRepository) RecentMessages(ctx context.Context, groupID int64, since time.Time, limit int) ([]model.ChatMessage, error) {
	query := `
        SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + `
            FROM chat_messages
            WHERE group_id = $1 AND created_at >= $2
            ORDER BY created_at DESC, id DESC
            LIMIT $3
        ) recent
        ORDER BY created_at ASC, id ASC
    `

	rows, err := r.db.Query(ctx, query, groupID, since, limit)
	if err != nil {
		r.logger.Error("Failed to query recent messages", zap.Int64("group_id", groupID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkProposalConfirmed flips proposal.confirmed false -> true. It reports
// false when the flag was already set, so exactly one caller wins.
func (r *MessageRepository) MarkProposalConfirmed(ctx context.Context, id int64) (bool, error) {
	query := `
        UPDATE chat_messages
        SET proposal = jsonb_set(proposal, '{confirmed}', 'true'::jsonb)
        WHERE id = $1
          AND kind = 'system'
          AND COALESCE((proposal->>'confirmed')::boolean, false) = false
    `

	var flipped bool
	err := otel.Traced(ctx, "confirm_proposal", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, id)
		if err != nil {
			return err
		}
		flipped = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to mark proposal confirmed", zap.Int64("message_id", id), zap.Error(err))
		return false, err
	}
	return flipped, nil
}

func scanMessage(row pgx.Row) (model.ChatMessage, error) {
	var (
		m        model.ChatMessage
		kind     string
		proposal []byte
	)
	if err := row.Scan(&m.ID, &m.GroupID, &m.AuthorID, &kind, &m.Body, &proposal, &m.CreatedAt); err != nil {
		return model.ChatMessage{}, err
	}
	m.Kind = model.MessageKind(kind)
	if len(proposal) > 0 {
		var p model.ActionProposal
		if err := json.Unmarshal(proposal, &p); err != nil {
			return model.ChatMessage{}, fmt.Errorf("decode proposal of message %d: %w", m.ID, err)
		}
		m.Proposal = &p
	}
	return m, nil
}
