package handlers

import (
	"errors"
	"net/http"
	"time"

	"campus-eats-api/proofs"
	"campus-eats-api/services"

	"github.com/gin-gonic/gin"
)

type PlaceOrderRequest struct {
	Items []struct {
		MenuItemID uint `json:"menu_item_id" binding:"required"`
		Quantity   int  `json:"quantity" binding:"required,min=1"`
	} `json:"items" binding:"required,min=1,dive"`
}

type SubmitPaymentRequest struct {
	Reference string `json:"transaction_reference" binding:"required"`
}

// uploadField is the multipart field carrying a payment screenshot.
const uploadField = "file"

// PlaceOrder creates a new order for the logged-in student
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lines := make([]services.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = services.CartLine{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
	}

	order, err := h.orders.Create(c.Request.Context(), actor(c), lines)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"order":   order,
	})
}

// GetMyOrders returns all orders for the logged-in student
func (h *Handler) GetMyOrders(c *gin.Context) {
	orders, err := h.orders.Mine(c.Request.Context(), actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// GetOrderDetail returns a single order's full detail with history
func (h *Handler) GetOrderDetail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":           order,
		"minutes_elapsed": int(time.Since(order.CreatedAt).Minutes()),
	})
}

// SubmitPaymentReference attaches a transaction reference to the order
func (h *Handler) SubmitPaymentReference(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.payments.SubmitReference(c.Request.Context(), actor(c), id, req.Reference)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Payment submitted for verification",
		"order":   order,
	})
}

// UploadPaymentProof attaches a payment screenshot to the order
func (h *Handler) UploadPaymentProof(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, proofs.MaxUploadSize+64<<10)
	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.respondError(c, proofs.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "An image is required in the '" + uploadField + "' field"})
		return
	}
	if fh.Size > proofs.MaxUploadSize {
		h.respondError(c, proofs.ErrTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer f.Close()

	order, err := h.payments.SubmitUpload(c.Request.Context(), actor(c), id, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Payment screenshot submitted for verification",
		"order":   order,
	})
}

// GetPaymentProof shows the submitted proof to the owner or staff
func (h *Handler) GetPaymentProof(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.payments.Proof(c.Request.Context(), actor(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": view})
}
