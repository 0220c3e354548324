package handlers

import (
	"net/http"

	"campus-eats-api/models"
	"campus-eats-api/services"

	"github.com/gin-gonic/gin"
)

// AdminGetAllOrders returns every order, optionally filtered by status
func (h *Handler) AdminGetAllOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), models.OrderStatus(c.Query("status")))
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

// AdminGetStats returns the dashboard counters
func (h *Handler) AdminGetStats(c *gin.Context) {
	stats, err := h.orders.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ── Payments ────────────────────────────────────────────────────────────────

type RejectPaymentRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// VerifyPayment accepts the submitted proof and issues the collection OTP
func (h *Handler) VerifyPayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.payments.Verify(c.Request.Context(), actor(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Payment verified",
		"otp":     order.OTP,
		"order":   order,
	})
}

// RejectPayment turns down the submitted proof with a reason
func (h *Handler) RejectPayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req RejectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := h.payments.Reject(c.Request.Context(), actor(c), id, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Payment rejected",
		"order":   order,
	})
}

// ── Settings ────────────────────────────────────────────────────────────────

type SaveSettingRequest struct {
	Key         string `json:"key" binding:"required,max=100"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// AdminGetSettings lists every stored setting
func (h *Handler) AdminGetSettings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(settings), "settings": settings})
}

// AdminSaveSetting creates or updates one setting
func (h *Handler) AdminSaveSetting(c *gin.Context) {
	var req SaveSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	setting, err := h.settings.Save(c.Request.Context(), services.SettingInput{
		Key:         req.Key,
		Value:       req.Value,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Setting saved", "setting": setting})
}

// ── Users ───────────────────────────────────────────────────────────────────

type CreateUserRequest struct {
	Username string          `json:"username" binding:"required,min=3,max=50"`
	Password string          `json:"password" binding:"required,min=6"`
	Role     models.UserRole `json:"role" binding:"required,oneof=student kitchen admin"`
	Email    string          `json:"email" binding:"omitempty,email"`
	FullName string          `json:"full_name"`
}

// AdminGetAllUsers returns all users, optionally filtered by role
func (h *Handler) AdminGetAllUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), models.UserRole(c.Query("role")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users})
}

// AdminCreateUser creates a staff or student account
func (h *Handler) AdminCreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.users.Create(c.Request.Context(), req.Username, req.Password, req.Role, req.Email, req.FullName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created", "user": user})
}
