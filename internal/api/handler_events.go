package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studyhub/internal/model"
	"studyhub/pkg/rbac"
)

type EventSubscriber interface {
	Subscribe(ctx context.Context, groupID int64) (<-chan []byte, error)
}

type GroupAuthorizer interface {
	Require(ctx context.Context, groupID, userID int64, permission string) (model.Membership, error)
}

type EventsHandler struct {
	subscriber EventSubscriber
	auth       GroupAuthorizer
	keepAlive  time.Duration
}

func NewEventsHandler(subscriber EventSubscriber, auth GroupAuthorizer) *EventsHandler {
	return &EventsHandler{subscriber: subscriber, auth: auth, keepAlive: 25 * time.Second}
}

// Stream handles GET /groups/:groupId/events as Server-Sent Events. Events
// published while the viewer is not connected are not replayed.
func (h *EventsHandler) Stream(c *gin.Context) {
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.auth.Require(ctx, groupID, currentUser(c), rbac.PermissionReadEvents); err != nil {
		writeError(c, err)
		return
	}

	events, err := h.subscriber.Subscribe(ctx, groupID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Status(http.StatusOK)
	c.Writer.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SSEvent("ping", "")
		case raw, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(eventName(raw), string(raw))
		}
		c.Writer.Flush()
	}
}

func eventName(raw []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Type == "" {
		return "message"
	}
	return envelope.Type
}
