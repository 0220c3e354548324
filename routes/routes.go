package routes

import (
	"net/http"

	"campus-eats-api/auth"
	"campus-eats-api/handlers"
	"campus-eats-api/middleware"
	"campus-eats-api/models"
	"campus-eats-api/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the engine with the ambient middleware and every route.
// A nil limiter disables throttling.
func NewRouter(h *handlers.Handler, tokens *auth.TokenIssuer, limiter *ratelimit.Limiter, logger *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS(), middleware.GlobalLimit(limiter))

	r.GET("/health", h.Health)
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome to the Campus Eats ordering API",
			"docs":    "/api/state-machine",
			"health":  "/health",
			"roles":   []models.UserRole{models.RoleStudent, models.RoleKitchen, models.RoleAdmin},
		})
	})

	SetupRoutes(r, h, tokens, limiter)
	return r
}

func SetupRoutes(r *gin.Engine, h *handlers.Handler, tokens *auth.TokenIssuer, limiter *ratelimit.Limiter) {
	limit := func(group string) gin.HandlerFunc { return middleware.RateLimit(limiter, group) }
	authRequired := middleware.AuthRequired(tokens)

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		// Auth
		public.POST("/auth/register", limit(ratelimit.GroupAuth), h.Register)
		public.POST("/auth/login", limit(ratelimit.GroupAuth), h.Login)

		// Menu and shop config (no auth needed)
		public.GET("/menu", limit(ratelimit.GroupMenuRead), h.GetMenu)
		public.GET("/menu/:itemId", limit(ratelimit.GroupMenuRead), h.GetMenuItem)
		public.GET("/config", limit(ratelimit.GroupMenuRead), h.GetPublicConfig)

		// State machine info
		public.GET("/state-machine", h.GetStateMachineInfo)
	}

	// Signed links carry their own authorization
	r.GET("/proofs/:handle", h.ServeProof)
	r.GET("/events/menu", h.StreamMenu)

	// ── Authenticated routes ───────────────────────────────────────
	authed := r.Group("/api")
	authed.Use(authRequired)
	{
		authed.GET("/profile", h.GetProfile)

		authed.POST("/orders", limit(ratelimit.GroupOrderCreate), h.PlaceOrder)
		authed.GET("/orders", limit(ratelimit.GroupOrderRead), h.GetMyOrders)
		authed.GET("/orders/:id", limit(ratelimit.GroupOrderRead), h.GetOrderDetail)

		authed.POST("/orders/:id/payment", limit(ratelimit.GroupPaymentSubmit), h.SubmitPaymentReference)
		authed.POST("/orders/:id/payment/upload", limit(ratelimit.GroupPaymentSubmit), h.UploadPaymentProof)
		authed.GET("/orders/:id/payment/proof", limit(ratelimit.GroupOrderRead), h.GetPaymentProof)
	}

	// ── Live updates ───────────────────────────────────────────────
	feeds := r.Group("/")
	feeds.Use(authRequired)
	{
		feeds.GET("/events/orders", h.StreamMyOrders)
		feeds.GET("/events/orders/:id", h.StreamOrder)
		feeds.GET("/ws", h.WebSocket)
	}

	// ── Kitchen routes (kitchen and admin) ─────────────────────────
	kitchen := r.Group("/api/kitchen")
	kitchen.Use(authRequired, middleware.StaffRequired())
	{
		kitchen.GET("/queue", limit(ratelimit.GroupOrderRead), h.GetKitchenQueue)
		kitchen.PATCH("/orders/:id/status", limit(ratelimit.GroupOrderStatus), h.UpdateOrderStatus)
		kitchen.POST("/verify-otp", limit(ratelimit.GroupOrderStatus), h.VerifyCollectionOTP)
	}

	// ── Staff order and payment desk ───────────────────────────────
	staff := r.Group("/api/admin")
	staff.Use(authRequired, middleware.StaffRequired())
	{
		staff.GET("/orders", limit(ratelimit.GroupAdminRead), h.AdminGetAllOrders)
		staff.PATCH("/orders/:id/status", limit(ratelimit.GroupAdminWrite), h.UpdateOrderStatus)
		staff.POST("/orders/:id/verify", limit(ratelimit.GroupAdminWrite), h.VerifyPayment)
		staff.POST("/orders/:id/reject", limit(ratelimit.GroupAdminWrite), h.RejectPayment)
		staff.POST("/verify-otp", limit(ratelimit.GroupAdminWrite), h.VerifyCollectionOTP)
		staff.GET("/stats", limit(ratelimit.GroupAdminRead), h.AdminGetStats)
	}
	r.GET("/admin/events", authRequired, middleware.StaffRequired(), h.StreamAllOrders)

	// ── Admin routes ───────────────────────────────────────────────
	admin := r.Group("/api/admin")
	admin.Use(authRequired, middleware.RoleRequired(models.RoleAdmin))
	{
		admin.GET("/settings", limit(ratelimit.GroupAdminRead), h.AdminGetSettings)
		admin.PUT("/settings", limit(ratelimit.GroupAdminWrite), h.AdminSaveSetting)
		admin.PUT("/shop", limit(ratelimit.GroupAdminWrite), h.SetShopStatus)

		admin.POST("/menu", limit(ratelimit.GroupMenuWrite), h.AddMenuItem)
		admin.PUT("/menu/:itemId", limit(ratelimit.GroupMenuWrite), h.UpdateMenuItem)
		admin.PATCH("/menu/:itemId/availability", limit(ratelimit.GroupMenuWrite), h.SetMenuItemAvailability)
		admin.DELETE("/menu/:itemId", limit(ratelimit.GroupMenuWrite), h.DeleteMenuItem)

		admin.GET("/users", limit(ratelimit.GroupAdminRead), h.AdminGetAllUsers)
		admin.POST("/users", limit(ratelimit.GroupAdminWrite), h.AdminCreateUser)
	}
}
