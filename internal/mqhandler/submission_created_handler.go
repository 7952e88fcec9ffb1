package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "studyhub/contracts/mq"
	"studyhub/pkg/logger"
	"studyhub/pkg/util"
)

type SubmissionGrader interface {
	Grade(ctx context.Context, submissionID int64) error
}

type SubmissionCreatedHandler struct {
	grader SubmissionGrader
	logger *zap.Logger
}

func NewSubmissionCreatedHandler(grader SubmissionGrader, logger *zap.Logger) *SubmissionCreatedHandler {
	return &SubmissionCreatedHandler{grader: grader, logger: logger}
}

// Handle consumes submission.created and runs one grading pass.
func (h *SubmissionCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.SubmissionCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal submission.created payload", zap.Error(err))
		return util.Permanent(err)
	}
	if p.SubmissionID <= 0 {
		return util.Permanent(fmt.Errorf("submission.created without submission_id"))
	}

	logger.WithTrace(ctx, h.logger).Info("Grading submission",
		zap.Int64("submission_id", p.SubmissionID),
		zap.Int64("milestone_id", p.MilestoneID),
		zap.Int64("author_id", p.AuthorID),
	)
	return permanentIfMissing(h.grader.Grade(ctx, p.SubmissionID))
}
