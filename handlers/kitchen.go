package handlers

import (
	"net/http"

	"campus-eats-api/models"

	"github.com/gin-gonic/gin"
)

// GetKitchenQueue returns paid, preparing and ready orders, oldest first
func (h *Handler) GetKitchenQueue(c *gin.Context) {
	orders, err := h.orders.KitchenQueue(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	summary := map[string]int{}
	for _, o := range orders {
		summary[string(o.Status)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"order_summary": summary,
		"count":         len(orders),
		"orders":        orders,
	})
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

// UpdateOrderStatus moves an order along the state machine. Rejecting a
// payment through this route requires the reason in note.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), actor(c), id, req.Status, req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Order status updated",
		"order_id":       order.ID,
		"current_status": order.Status,
		"order":          order,
	})
}

type VerifyOTPRequest struct {
	OTP string `json:"otp" binding:"required,len=6,numeric"`
}

// VerifyCollectionOTP finds the uncollected order a student's OTP belongs to.
// Completing the handover is a separate status update.
func (h *Handler) VerifyCollectionOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.VerifyOTP(c.Request.Context(), actor(c), req.OTP)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "OTP verified",
		"order":            order,
		"ready_to_collect": order.Status == models.StatusReady,
	})
}
