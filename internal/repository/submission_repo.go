package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/internal/model"
	"studyhub/pkg/otel"
	"studyhub/pkg/outbox"
	"studyhub/pkg/trace"
)

const submissionColumns = `id, milestone_id, author_id, content, files, ai_verified, ai_comment, ai_score, graded_at, submitted_at`

type SubmissionRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewSubmissionRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{db: db, outbox: outboxRepo, logger: logger}
}

// CreateWithEvent stores the submission and stages submission.created in the
// same transaction, so grading is requested if and only if the row exists.
func (r *SubmissionRepository) CreateWithEvent(ctx context.Context, groupID int64, s model.MilestoneSubmission) (model.MilestoneSubmission, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.MilestoneSubmission{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	files := s.Files
	if files == nil {
		files = []string{}
	}
	query := `
        INSERT INTO milestone_submissions (milestone_id, author_id, content, files)
        VALUES ($1, $2, $3, $4)
        RETURNING ` + submissionColumns

	out, err := scanSubmission(tx.QueryRow(ctx, query, s.MilestoneID, s.AuthorID, s.Content, files))
	if err != nil {
		r.logger.Error("Failed to insert submission", zap.Int64("milestone_id", s.MilestoneID), zap.Error(err))
		return model.MilestoneSubmission{}, err
	}

	payload := mqcontracts.SubmissionCreatedPayload{
		SubmissionID: out.ID,
		MilestoneID:  out.MilestoneID,
		GroupID:      groupID,
		AuthorID:     out.AuthorID,
		SubmittedAt:  out.SubmittedAt,
		TraceID:      trace.FromContext(ctx),
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "submission", out.ID, mqcontracts.RoutingKeySubmissionCreated, payload); err != nil {
		r.logger.Error("Failed to insert submission.created to outbox", zap.Error(err))
		return model.MilestoneSubmission{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.MilestoneSubmission{}, fmt.Errorf("failed to commit submission: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) GetSubmission(ctx context.Context, id int64) (model.MilestoneSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM milestone_submissions WHERE id = $1`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return model.MilestoneSubmission{}, notFound(err, fmt.Sprintf("submission %d", id))
	}
	return s, nil
}

func (r *SubmissionRepository) ListByMilestone(ctx context.Context, milestoneID int64) ([]model.MilestoneSubmission, error) {
	query := `
        SELECT ` + submissionColumns + `
        FROM milestone_submissions
        WHERE milestone_id = $1
        ORDER BY submitted_at ASC, id ASC
    `

	rows, err := r.db.Query(ctx, query, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.MilestoneSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// PendingGrading lists ungraded submissions older than before, as grading
// requests. Submissions re-requested since before are skipped; the rest come
// never-requested first, then least recently requested, so a few that never
// get a verdict cannot starve the others.
func (r *SubmissionRepository) PendingGrading(ctx context.Context, before time.Time, limit int) ([]mqcontracts.SubmissionCreatedPayload, error) {
	query := `
        SELECT s.id, s.milestone_id, m.group_id, s.author_id, s.submitted_at
        FROM milestone_submissions s
        JOIN milestones m ON m.id = s.milestone_id
        LEFT JOIN grading_requests g ON g.submission_id = s.id
        WHERE s.graded_at IS NULL
          AND s.submitted_at < $1
          AND m.completed = FALSE
          AND (g.requested_at IS NULL OR g.requested_at < $1)
        ORDER BY g.requested_at ASC NULLS FIRST, s.submitted_at ASC
        LIMIT $2
    `

	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		r.logger.Error("Failed to query pending submissions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var pending []mqcontracts.SubmissionCreatedPayload
	for rows.Next() {
		var p mqcontracts.SubmissionCreatedPayload
		if err := rows.Scan(&p.SubmissionID, &p.MilestoneID, &p.GroupID, &p.AuthorID, &p.SubmittedAt); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkRegradeRequested stamps when grading was last re-requested for ids.
func (r *SubmissionRepository) MarkRegradeRequested(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
        INSERT INTO grading_requests (submission_id, requested_at)
        SELECT id, $2 FROM unnest($1::bigint[]) AS id
        ON CONFLICT (submission_id) DO UPDATE SET requested_at = EXCLUDED.requested_at
    `
	if _, err := r.db.Exec(ctx, query, ids, at); err != nil {
		r.logger.Error("Failed to stamp grading requests", zap.Int("count", len(ids)), zap.Error(err))
		return err
	}
	return nil
}

// RecordGrade writes one verdict. Later gradings of the same row overwrite
// earlier ones.
func (r *SubmissionRepository) RecordGrade(ctx context.Context, id int64, g model.GradeResult, gradedAt time.Time) error {
	query := `
        UPDATE milestone_submissions
        SET ai_verified = $2, ai_comment = $3, ai_score = $4, graded_at = $5
        WHERE id = $1
    `

	return otel.Traced(ctx, "record_grade", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, id, g.Pass, g.Review, g.Score, gradedAt)
		if err != nil {
			r.logger.Error("Failed to record grade", zap.Int64("submission_id", id), zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("submission %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
}

func scanSubmission(row pgx.Row) (model.MilestoneSubmission, error) {
	var s model.MilestoneSubmission
	err := row.Scan(&s.ID, &s.MilestoneID, &s.AuthorID, &s.Content, &s.Files,
		&s.AIVerified, &s.AIComment, &s.AIScore, &s.GradedAt, &s.SubmittedAt)
	if err != nil {
		return model.MilestoneSubmission{}, err
	}
	return s, nil
}
