package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"studyhub/pkg/otel"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	Engine *gin.Engine
}

type RouterDeps struct {
	Chat        *ChatHandler
	Submissions *SubmissionHandler
	Events      *EventsHandler
	JWTSecret   string
	Readiness   map[string]ReadinessCheck
	Logger      *zap.Logger
}

func NewRouter(d RouterDeps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), AccessLog(d.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyz(d.Readiness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/groups/:groupId")
	auth.Use(AuthMiddleware(d.JWTSecret))
	{
		auth.POST("/messages", d.Chat.PostMessage)
		auth.POST("/messages/:messageId/confirm", d.Chat.ConfirmProposal)
		auth.POST("/milestones/:milestoneId/submissions", d.Submissions.Submit)
		auth.GET("/events", d.Events.Stream)
	}

	return &Router{Engine: r}
}

func readyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func (r *Router) Handler() http.Handler {
	return r.Engine
}
