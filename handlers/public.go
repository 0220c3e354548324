package handlers

import (
	"context"
	"net/http"
	"time"

	"campus-eats-api/models"
	"campus-eats-api/services"
	"campus-eats-api/statemachine"

	"github.com/gin-gonic/gin"
)

// GetMenu returns the menu (public). Filters apply after the cache.
func (h *Handler) GetMenu(c *gin.Context) {
	items, err := h.menu.List(c.Request.Context(), services.MenuFilter{
		Category:      c.Query("category"),
		VegOnly:       c.Query("is_veg") == "true",
		AvailableOnly: c.Query("available") == "true",
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "menu": items})
}

// GetMenuItem returns one menu item (public)
func (h *Handler) GetMenuItem(c *gin.Context) {
	id, ok := paramID(c, "itemId")
	if !ok {
		return
	}
	item, err := h.menu.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// GetPublicConfig returns shop status and payment details (public)
func (h *Handler) GetPublicConfig(c *gin.Context) {
	cfg, err := h.settings.Public(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GetStateMachineInfo returns the full state machine for informational purposes
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	var terminal []models.OrderStatus
	for _, s := range models.AllStatuses {
		if statemachine.IsTerminal(s) {
			terminal = append(terminal, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"state_machine":   statemachine.GetAllTransitions(),
		"statuses":        models.AllStatuses,
		"terminal_states": terminal,
		"description":     "Campus Order Lifecycle State Machine",
	})
}

// Health reports database and shared store availability. Only a database
// outage makes the service unhealthy; without the store it runs degraded.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	db := "up"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warnw("health check: database unreachable", "error", err)
		db, status, code = "down", "unavailable", http.StatusServiceUnavailable
	}
	shared := "up"
	if !h.store.Available() {
		shared = "down"
		if code == http.StatusOK {
			status = "degraded"
		}
	}
	c.JSON(code, gin.H{
		"status":       status,
		"database":     db,
		"store":        shared,
		"live_updates": h.hub.Ready(),
		"subscribers":  h.hub.Count(),
	})
}

// ServeProof streams a payment screenshot behind a signed, expiring link
func (h *Handler) ServeProof(c *gin.Context) {
	handle := c.Param("handle")
	rs, contentType, err := h.proofs.Open(handle, c.Query("expires"), c.Query("sig"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, handle, time.Time{}, rs)
}
