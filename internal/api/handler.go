package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the domain services the handlers call
type Services struct {
	Orders        *service.OrderService
	Inspections   *service.InspectionService
	Listings      *service.ListingService
	Wallets       *service.WalletService
	Notifications *service.NotificationService
}

// Handler contains HTTP handlers
type Handler struct {
	Services
	sessions SessionResolver
	checks   map[string]Pinger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(services Services, sessions SessionResolver, checks map[string]Pinger) *Handler {
	return &Handler{
		Services: services,
		sessions: sessions,
		checks:   checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	public := v1.Group("", authOptional(h.sessions))
	{
		public.GET("/listings", h.searchListings)
		public.GET("/listings/search/advanced", h.searchListings)
		public.GET("/listings/search/facets", h.listingFacets)
		public.GET("/listings/:id", h.getListing)
	}

	auth := v1.Group("", authRequired(h.sessions))
	{
		sellers := auth.Group("", requireRole(models.RoleSeller))
		sellers.GET("/listings/mine", h.myListings)
		sellers.POST("/listings", h.createListing)
		sellers.PUT("/listings/:id", h.updateListing)
		sellers.POST("/listings/:id/submit", h.submitListing)

		auth.POST("/orders", requireRole(models.RoleBuyer), h.createOrder)
		auth.GET("/orders", h.listOrders)
		auth.GET("/orders/:id", h.getOrder)
		auth.PUT("/orders/:id/status", h.transitionOrder)

		auth.POST("/inspections", requireRole(models.RoleInspector), h.submitInspection)
		auth.GET("/inspections/pending", requireRole(models.RoleInspector, models.RoleAdmin), h.pendingInspections)
		auth.GET("/inspections/checklist/order/:orderId", requireRole(models.RoleInspector, models.RoleAdmin), h.inspectionChecklist)
		auth.GET("/inspections/:orderId", h.getInspection)

		auth.GET("/wallet/balance", h.walletBalance)
		auth.GET("/wallet/transactions", h.walletTransactions)
		auth.GET("/wallet/withdraw/preview", h.withdrawPreview)
		auth.POST("/wallet/deposit", h.deposit)
		auth.POST("/wallet/withdraw", h.withdraw)
		auth.GET("/withdrawals", h.listWithdrawals)

		auth.GET("/notifications", h.listNotifications)

		admin := auth.Group("/admin", requireRole(models.RoleAdmin))
		admin.GET("/listings/queue", h.moderationQueue)
		admin.GET("/listings/:id/status", h.listingStatus)
		admin.PUT("/listings/:id/status", h.moderateListing)
		admin.PUT("/orders/:id/payout", h.releasePayout)
		admin.PUT("/withdrawals/:id/status", h.processWithdrawal)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// pathID parses a positive int64 path parameter, writing a 400 on failure
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func queryInt64(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}
