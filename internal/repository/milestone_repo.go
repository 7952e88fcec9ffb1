package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/otel"
)

const milestoneColumns = `id, group_id, title, description, due_date, completed, source_message_id, source_index, created_at`

type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{db: db, logger: logger}
}

func (r *MilestoneRepository) GetMilestone(ctx context.Context, id int64) (model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1`

	m, err := scanMilestone(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return model.Milestone{}, notFound(err, fmt.Sprintf("milestone %d", id))
	}
	return m, nil
}

// CreateFromDraft inserts m unless a milestone with the same source already
// exists. created is false on that conflict and the existing row is returned.
func (r *MilestoneRepository) CreateFromDraft(ctx context.Context, m model.Milestone) (model.Milestone, bool, error) {
	r.logger.Debug("Inserting milestone",
		zap.Int64("group_id", m.GroupID),
		zap.String("title", m.Title),
	)

	query := `
        INSERT INTO milestones (group_id, title, description, due_date, source_message_id, source_index)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (source_message_id, source_index) WHERE source_message_id IS NOT NULL
        DO NOTHING
        RETURNING ` + milestoneColumns

	msgID, idx := sourceArgs(m.Source)
	var due *time.Time
	if m.DueDate != nil {
		t := m.DueDate.Time()
		due = &t
	}

	var out model.Milestone
	err := otel.Traced(ctx, "insert_milestone", query, func(ctx context.Context) error {
		var err error
		out, err = scanMilestone(r.db.QueryRow(ctx, query, m.GroupID, m.Title, m.Description, due, msgID, idx))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) && m.Source != nil {
		existing, err := r.getBySource(ctx, *m.Source)
		return existing, false, err
	}
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return model.Milestone{}, false, err
	}

	r.logger.Info("Milestone inserted successfully",
		zap.Int64("id", out.ID),
		zap.Int64("group_id", out.GroupID),
	)
	return out, true, nil
}

func (r *MilestoneRepository) getBySource(ctx context.Context, src model.MaterializationSource) (model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE source_message_id = $1 AND source_index = $2`
	m, err := scanMilestone(r.db.QueryRow(ctx, query, src.MessageID, src.Index))
	if err != nil {
		return model.Milestone{}, notFound(err, "milestone by source")
	}
	return m, nil
}

// MarkCompleted only ever moves false -> true. It reports whether this call
// made the transition.
func (r *MilestoneRepository) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	query := `
        UPDATE milestones
        SET completed = TRUE, updated_at = NOW()
        WHERE id = $1 AND completed = FALSE
    `

	var flipped bool
	err := otel.Traced(ctx, "complete_milestone", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, id)
		if err != nil {
			return err
		}
		flipped = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to mark milestone completed", zap.Int64("milestone_id", id), zap.Error(err))
		return false, err
	}
	return flipped, nil
}

func scanMilestone(row pgx.Row) (model.Milestone, error) {
	var (
		m     model.Milestone
		due   *time.Time
		srcID *int64
		srcIx *int
	)
	err := row.Scan(&m.ID, &m.GroupID, &m.Title, &m.Description, &due, &m.Completed, &srcID, &srcIx, &m.CreatedAt)
	if err != nil {
		return model.Milestone{}, err
	}
	if due != nil {
		d := model.DateOf(due.UTC())
		m.DueDate = &d
	}
	m.Source = sourceFrom(srcID, srcIx)
	return m, nil
}

func sourceArgs(src *model.MaterializationSource) (*int64, *int) {
	if src == nil {
		return nil, nil
	}
	return &src.MessageID, &src.Index
}

func sourceFrom(msgID *int64, idx *int) *model.MaterializationSource {
	if msgID == nil || idx == nil {
		return nil
	}
	return &model.MaterializationSource{MessageID: *msgID, Index: *idx}
}
