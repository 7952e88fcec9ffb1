package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studyhub/internal/model"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var partial *model.PartialMaterializationError
	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "proposal only partly materialized, retry to finish",
			"created": partial.Created,
			"total":   partial.Total,
		})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotMember), errors.Is(err, model.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrKindMismatch),
		errors.Is(err, model.ErrNotProposal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
