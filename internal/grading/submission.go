package grading

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"studyhub/internal/model"
	"studyhub/pkg/logger"
	"studyhub/pkg/rbac"
)

type SubmissionCreator interface {
	// CreateWithEvent stores the submission together with its grading task.
	CreateWithEvent(ctx context.Context, groupID int64, s model.MilestoneSubmission) (model.MilestoneSubmission, error)
}

type Authorizer interface {
	Require(ctx context.Context, groupID, userID int64, permission string) (model.Membership, error)
}

type SubmitRequest struct {
	GroupID     int64
	MilestoneID int64
	UserID      int64
	Content     string
	Files       []string
}

type SubmissionService struct {
	store      SubmissionCreator
	milestones MilestoneReader
	auth       Authorizer
	logger     *zap.Logger
}

func NewSubmissionService(store SubmissionCreator, milestones MilestoneReader, auth Authorizer, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{store: store, milestones: milestones, auth: auth, logger: logger}
}

// Submit returns as soon as the submission is stored; grading runs later.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (model.MilestoneSubmission, error) {
	content := strings.TrimSpace(req.Content)
	var files []string
	for _, f := range req.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if content == "" && len(files) == 0 {
		return model.MilestoneSubmission{}, fmt.Errorf("%w: submission needs content or files", model.ErrInvalidInput)
	}

	if _, err := s.auth.Require(ctx, req.GroupID, req.UserID, rbac.PermissionCreateSubmission); err != nil {
		return model.MilestoneSubmission{}, err
	}
	ms, err := s.milestones.GetMilestone(ctx, req.MilestoneID)
	if err != nil {
		return model.MilestoneSubmission{}, err
	}
	if ms.GroupID != req.GroupID {
		return model.MilestoneSubmission{}, fmt.Errorf("milestone %d: %w", req.MilestoneID, model.ErrNotFound)
	}

	sub, err := s.store.CreateWithEvent(ctx, req.GroupID, model.MilestoneSubmission{
		MilestoneID: req.MilestoneID,
		AuthorID:    req.UserID,
		Content:     content,
		Files:       files,
	})
	if err != nil {
		return model.MilestoneSubmission{}, fmt.Errorf("failed to store submission: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Submission created",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("milestone_id", sub.MilestoneID),
		zap.Int64("user_id", req.UserID),
	)
	return sub, nil
}
