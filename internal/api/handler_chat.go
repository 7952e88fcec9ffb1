package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studyhub/internal/chat"
	"studyhub/internal/model"
	"studyhub/internal/proposal"
)

type MessagePoster interface {
	Post(ctx context.Context, req chat.PostRequest) (model.ChatMessage, error)
}

type ProposalConfirmer interface {
	Confirm(ctx context.Context, req proposal.ConfirmRequest) (proposal.ConfirmResult, error)
}

type ChatHandler struct {
	poster    MessagePoster
	confirmer ProposalConfirmer
}

func NewChatHandler(poster MessagePoster, confirmer ProposalConfirmer) *ChatHandler {
	return &ChatHandler{poster: poster, confirmer: confirmer}
}

// body is validated by the service, after membership.
type postMessageRequest struct {
	Body string `json:"body"`
}

// PostMessage handles POST /groups/:groupId/messages
func (h *ChatHandler) PostMessage(c *gin.Context) {
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	msg, err := h.poster.Post(c.Request.Context(), chat.PostRequest{
		GroupID: groupID,
		UserID:  currentUser(c),
		Body:    req.Body,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type confirmRequest struct {
	Kind string `json:"kind" binding:"required,oneof=schedule_sessions create_milestones"`
}

// ConfirmProposal handles POST /groups/:groupId/messages/:messageId/confirm
func (h *ChatHandler) ConfirmProposal(c *gin.Context) {
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "kind must be schedule_sessions or create_milestones")
		return
	}
	kind, err := model.ParseActionKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.confirmer.Confirm(c.Request.Context(), proposal.ConfirmRequest{
		GroupID:   groupID,
		MessageID: messageID,
		UserID:    currentUser(c),
		Kind:      kind,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           res.Message,
		"already_confirmed": res.AlreadyConfirmed,
		"created":           res.Created,
		"milestones":        res.Milestones,
		"sessions":          res.Sessions,
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
