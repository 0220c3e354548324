package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"campus-eats-api/middleware"
	"campus-eats-api/proofs"
	"campus-eats-api/services"
	"campus-eats-api/statemachine"
	"campus-eats-api/store"

	"github.com/gin-gonic/gin"
)

// respondError is the one place core outcomes become HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		verr *services.ValidationError
		terr *statemachine.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.As(err, &terr):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "Invalid state transition",
			"reason":            terr.Error(),
			"current_status":    terr.From,
			"requested":         terr.To,
			"valid_next_states": terr.Allowed,
		})
	case errors.Is(err, services.ErrDuplicateReference):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrMenuItemInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "hint": "mark the item unavailable instead"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrShopClosed):
		c.JSON(http.StatusForbidden, gin.H{"error": "The shop is currently closed", "shop_status": "closed"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrNotImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrBadHandle), errors.Is(err, proofs.ErrBadSignature):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live updates are temporarily unavailable, refresh to see the latest state"})
	default:
		h.logger.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// paramID parses a positive integer path parameter.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// actor builds the caller identity set by AuthRequired.
func actor(c *gin.Context) services.Actor {
	return services.Actor{
		UserID:   middleware.GetUserID(c),
		Username: middleware.GetUsername(c),
		Role:     middleware.GetRole(c),
	}
}
