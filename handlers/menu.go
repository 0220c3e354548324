package handlers

import (
	"net/http"

	"campus-eats-api/models"
	"campus-eats-api/services"

	"github.com/gin-gonic/gin"
)

// ── Menu Management ─────────────────────────────────────────────────────────

type CreateMenuItemRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	Price       int    `json:"price" binding:"required,gt=0"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	IsVeg       *bool  `json:"is_veg"`
	IsAvailable *bool  `json:"is_available"`
}

type UpdateMenuItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int    `json:"price"`
	Category    *string `json:"category"`
	ImageURL    *string `json:"image_url"`
	IsVeg       *bool   `json:"is_veg"`
	IsAvailable *bool   `json:"is_available"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

// AddMenuItem adds a new item to the menu
func (h *Handler) AddMenuItem(c *gin.Context) {
	var req CreateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := services.MenuInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		IsVeg:       true,
		IsAvailable: true,
	}
	if req.IsVeg != nil {
		in.IsVeg = *req.IsVeg
	}
	if req.IsAvailable != nil {
		in.IsAvailable = *req.IsAvailable
	}

	item, err := h.menu.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Menu item added", "item": item})
}

// UpdateMenuItem changes the fields present in the body
func (h *Handler) UpdateMenuItem(c *gin.Context) {
	id, ok := paramID(c, "itemId")
	if !ok {
		return
	}
	var req UpdateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.menu.Update(c.Request.Context(), id, services.MenuPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		IsVeg:       req.IsVeg,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Menu item updated", "item": item})
}

// SetMenuItemAvailability marks an item sold out or back on the menu
func (h *Handler) SetMenuItemAvailability(c *gin.Context) {
	id, ok := paramID(c, "itemId")
	if !ok {
		return
	}
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.menu.SetAvailability(c.Request.Context(), id, *req.IsAvailable)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Availability updated", "item": item})
}

// DeleteMenuItem removes a menu item no order refers to
func (h *Handler) DeleteMenuItem(c *gin.Context) {
	id, ok := paramID(c, "itemId")
	if !ok {
		return
	}
	if err := h.menu.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Menu item deleted"})
}

// ── Shop ────────────────────────────────────────────────────────────────────

type ShopStatusRequest struct {
	Open *bool `json:"open" binding:"required"`
}

// SetShopStatus opens or closes the shop for new orders
func (h *Handler) SetShopStatus(c *gin.Context) {
	var req ShopStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	value := models.ShopClosed
	if *req.Open {
		value = models.ShopOpen
	}
	setting, err := h.settings.Save(c.Request.Context(), services.SettingInput{
		Key:      models.SettingShopStatus,
		Value:    value,
		Category: "shop",
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Shop is now " + value, "setting": setting})
}
