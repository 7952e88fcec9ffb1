package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"studyhub/internal/grading"
	"studyhub/internal/model"
)

type Submitter interface {
	Submit(ctx context.Context, req grading.SubmitRequest) (model.MilestoneSubmission, error)
}

type SubmissionHandler struct {
	submitter Submitter
}

func NewSubmissionHandler(submitter Submitter) *SubmissionHandler {
	return &SubmissionHandler{submitter: submitter}
}

type submitRequest struct {
	Content string   `json:"content"`
	Files   []string `json:"files" binding:"max=20,dive,max=500"`
}

// Submit handles POST /groups/:groupId/milestones/:milestoneId/submissions.
// It answers 202: grading happens in the background.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	milestoneID, ok := pathID(c, "milestoneId")
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	sub, err := h.submitter.Submit(c.Request.Context(), grading.SubmitRequest{
		GroupID:     groupID,
		MilestoneID: milestoneID,
		UserID:      currentUser(c),
		Content:     req.Content,
		Files:       req.Files,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"submission": sub,
		"status":     "pending_review",
	})
}
