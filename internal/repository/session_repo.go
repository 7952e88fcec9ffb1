package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/otel"
)

const sessionColumns = `id, group_id, title, description, starts_at, ends_at, created_by, source_message_id, source_index, created_at`

type SessionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(db *pgxpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

// CreateFromDraft mirrors MilestoneRepository.CreateFromDraft for sessions.
func (r *SessionRepository) CreateFromDraft(ctx context.Context, s model.StudySession) (model.StudySession, bool, error) {
	query := `
        INSERT INTO study_sessions (group_id, title, description, starts_at, ends_at, created_by, source_message_id, source_index)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (source_message_id, source_index) WHERE source_message_id IS NOT NULL
        DO NOTHING
        RETURNING ` + sessionColumns

	msgID, idx := sourceArgs(s.Source)

	var out model.StudySession
	err := otel.Traced(ctx, "insert_study_session", query, func(ctx context.Context) error {
		var err error
		out, err = scanSession(r.db.QueryRow(ctx, query,
			s.GroupID, s.Title, s.Description, s.StartsAt, s.EndsAt, s.CreatedBy, msgID, idx))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) && s.Source != nil {
		q := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE source_message_id = $1 AND source_index = $2`
		existing, err := scanSession(r.db.QueryRow(ctx, q, s.Source.MessageID, s.Source.Index))
		if err != nil {
			return model.StudySession{}, false, notFound(err, "study session by source")
		}
		return existing, false, nil
	}
	if err != nil {
		r.logger.Error("Failed to insert study session", zap.Int64("group_id", s.GroupID), zap.Error(err))
		return model.StudySession{}, false, err
	}

	r.logger.Info("Study session inserted",
		zap.Int64("id", out.ID),
		zap.Int64("group_id", out.GroupID),
		zap.Time("starts_at", out.StartsAt),
	)
	return out, true, nil
}

func scanSession(row pgx.Row) (model.StudySession, error) {
	var (
		s         model.StudySession
		createdBy *int64
		srcID     *int64
		srcIx     *int
	)
	err := row.Scan(&s.ID, &s.GroupID, &s.Title, &s.Description, &s.StartsAt, &s.EndsAt, &createdBy, &srcID, &srcIx, &s.CreatedAt)
	if err != nil {
		return model.StudySession{}, err
	}
	if createdBy != nil {
		s.CreatedBy = *createdBy
	}
	s.Source = sourceFrom(srcID, srcIx)
	return s, nil
}
