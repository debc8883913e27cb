package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/middlewares"
	"github.com/dlvery/dlvery_backend/models"
	"github.com/dlvery/dlvery_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// RateLimiter throttles per client IP using Redis counters.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// writeError maps the application error kinds to HTTP status codes. This
// is the only place the mapping lives.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch utils.KindOf(err) {
	case utils.KindNotFound:
		status = http.StatusNotFound
	case utils.KindValidation, utils.KindInvalidStatus:
		status = http.StatusBadRequest
	case utils.KindInsufficientStock, utils.KindConflict:
		status = http.StatusConflict
	case utils.KindUnauthorized:
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseDateParam(c *gin.Context, name string) (models.Date, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
		return models.Date{}, false
	}
	date, err := models.ParseFlexibleDate(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " date"})
		return models.Date{}, false
	}
	return date, true
}

func dateRangeParams(c *gin.Context) (time.Time, time.Time, bool) {
	start, ok := parseDateParam(c, "start")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := parseDateParam(c, "end")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	// End is inclusive, cover the whole day.
	return start.Time(), end.AddDays(1).Time().Add(-time.Nanosecond), true
}

func sessionUsername(c *gin.Context) (string, bool) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return username, true
}

// --- auth handlers ---

func registerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		resp, err := models.Register(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func loginHandler(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		resp, err := models.Login(c.Request.Context(), &req, role)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// oauthCallbackHandler receives the provider-verified user payload and
// upserts the delivery-team account. The OAuth handshake itself happens
// upstream.
func oauthCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.OAuthUserInfo
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		resp, err := models.UpsertOAuthUser(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func verifyEmailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		verified, err := models.VerifyEmail(c.Request.Context(), c.Query("token"))
		if err != nil {
			writeError(c, err)
			return
		}
		if !verified {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully! You can now log in."})
	}
}

func resendVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		if err := models.ResendVerification(c.Request.Context(), req.Email); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := sessionUsername(c); !ok {
			return
		}
		if _, err := models.Logout(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// --- inventory handlers ---

func listProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.GetAllProducts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func availableProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.GetAvailableProducts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewProduct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := models.GetProductBySku(c.Request.Context(), c.Param("key"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

// The :key segment carries the numeric product id for update/delete and
// the SKU for the read paths.
func updateProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("key"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
			return
		}
		var req models.NewProduct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.UpdateProduct(c.Request.Context(), id, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func deleteProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("key"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
			return
		}
		product, err := models.DeleteProduct(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Product deleted", "sku": product.Sku})
	}
}

func recordMovementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewMovement
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.RecordMovementBySku(c.Request.Context(), c.Param("key"), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func movementHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		movements, err := models.GetMovementHistory(c.Request.Context(), c.Param("key"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}

func lowStockProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := 10
		if v := strings.TrimSpace(c.Query("threshold")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
				return
			}
			threshold = n
		}
		products, err := models.GetLowStockProducts(c.Request.Context(), threshold)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func expiringProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 7
		if v := strings.TrimSpace(c.Query("days")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
				return
			}
			days = n
		}
		products, err := models.GetExpiringProducts(c.Request.Context(), models.Today().AddDays(days))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func productsByCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		category := models.ProductCategory(strings.ToUpper(c.Param("category")))
		if !category.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
			return
		}
		products, err := models.GetProductsByCategory(c.Request.Context(), category)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func dashboardStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := models.GetDashboardStats(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func listSkusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skus, err := models.GetAllSkus(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, skus)
	}
}

func listAgentOptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := models.GetDeliveryAgentOptions(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, agents)
	}
}

// --- delivery handlers (inventory side) ---

func createDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewDelivery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		delivery, err := models.CreateDelivery(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.NewDeliveryView(delivery))
	}
}

func listDeliveriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var deliveries []*models.Delivery
		var err error
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			deliveries, err = models.GetDeliveriesByStatus(c.Request.Context(), models.DeliveryStatus(status))
		} else {
			deliveries, err = models.GetAllDeliveries(c.Request.Context())
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func deliveriesByAgentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveries, err := models.GetDeliveriesByAgent(c.Request.Context(), c.Param("agent"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func pendingDeliveriesByAgentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveries, err := models.GetPendingDeliveriesByAgent(c.Request.Context(), c.Param("agent"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func deliveriesByProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveries, err := models.GetDeliveriesByProductSku(c.Request.Context(), c.Param("sku"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func deliveriesByDateRangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start, end, ok := dateRangeParams(c)
		if !ok {
			return
		}
		deliveries, err := models.GetDeliveriesByDateRange(c.Request.Context(), start, end)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func damagedDeliveriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveries, err := models.GetDamagedDeliveries(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func deliveredByDateRangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start, end, ok := dateRangeParams(c)
		if !ok {
			return
		}
		deliveries, err := models.GetDeliveredByDateRange(c.Request.Context(), start, end)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func trackDeliveriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveries, err := models.TrackDeliveries(c.Request.Context(), c.Query("sku"), c.Query("agent"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryViews(deliveries))
	}
}

func updateDeliveryStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		var req models.StatusUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		delivery, err := models.UpdateDeliveryStatus(c.Request.Context(), id, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewDeliveryView(delivery))
	}
}

// listDeliveryAgentNamesHandler feeds the tracking filter with every agent
// name deliveries have been keyed by, past and present.
func listDeliveryAgentNamesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := models.GetAllDeliveryAgents(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, agents)
	}
}

func agentNameBackfillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := models.BackfillAgentDisplayNames(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// --- delivery handlers (agent side) ---

func agentTodayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		deliveries, err := models.GetTodaysDeliveries(c.Request.Context(), username)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewAgentDeliveryViews(deliveries, models.Today()))
	}
}

func agentPendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		deliveries, err := models.GetPendingDeliveriesForAgent(c.Request.Context(), username)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewAgentDeliveryViews(deliveries, models.Today()))
	}
}

func agentDeliveredHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		deliveries, err := models.GetDeliveredDeliveriesForAgent(c.Request.Context(), username)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewAgentDeliveryViews(deliveries, models.Today()))
	}
}

func agentDeliveryByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("deliveryId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		delivery, err := models.GetDeliveryByIdAndAgent(c.Request.Context(), id, username)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewAgentDeliveryView(delivery, models.Today()))
	}
}

type agentStatusUpdateRequest struct {
	DeliveryId int `json:"delivery_id" binding:"required"`
	models.StatusUpdate
}

func agentUpdateDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		var req agentStatusUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		delivery, err := models.UpdateDeliveryByAgent(c.Request.Context(), req.DeliveryId, username, &req.StatusUpdate)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.NewAgentDeliveryView(delivery, models.Today()))
	}
}

// --- agent profile handlers ---

func getAgentProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		profile, err := models.GetAgentProfile(c.Request.Context(), username)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

func upsertAgentProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		var req models.NewAgentProfile
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		profile, err := models.UpsertAgentProfile(c.Request.Context(), username, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

func agentProfileCompleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUsername(c)
		if !ok {
			return
		}
		complete, err := models.IsAgentProfileComplete(c.Request.Context(), username)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"profile_complete": complete})
	}
}

func registerRoutes(r *gin.Engine) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/inventory/register", registerHandler())
		auth.POST("/inventory/login", loginHandler(models.RoleInventoryTeam))
		auth.POST("/delivery/login", loginHandler(models.RoleDeliveryTeam))
		auth.POST("/delivery/oauth", oauthCallbackHandler())
		auth.GET("/verify-email", verifyEmailHandler())
		auth.POST("/resend-verification", resendVerificationHandler())
		auth.POST("/logout", logoutHandler())
	}

	inventory := r.Group("/api/inventory", middlewares.RequireRole(string(models.RoleInventoryTeam)))
	{
		inventory.GET("/products", listProductsHandler())
		inventory.POST("/products", createProductHandler())
		inventory.GET("/products/available", availableProductsHandler())
		inventory.GET("/products/low-stock", lowStockProductsHandler())
		inventory.GET("/products/expiring", expiringProductsHandler())
		inventory.GET("/products/category/:category", productsByCategoryHandler())
		inventory.GET("/products/:key", getProductHandler())
		inventory.PUT("/products/:key", updateProductHandler())
		inventory.DELETE("/products/:key", deleteProductHandler())
		inventory.POST("/products/:key/movement", recordMovementHandler())
		inventory.GET("/products/:key/movements", movementHistoryHandler())
		inventory.POST("/upload", uploadInventoryHandler())
		inventory.GET("/template", templateHandler())
		inventory.GET("/dashboard/stats", dashboardStatsHandler())
		inventory.GET("/skus", listSkusHandler())
		inventory.GET("/agents", listAgentOptionsHandler())
	}

	deliveries := r.Group("/api/deliveries", middlewares.RequireRole(string(models.RoleInventoryTeam)))
	{
		deliveries.POST("", createDeliveryHandler())
		deliveries.GET("", listDeliveriesHandler())
		deliveries.GET("/agent/:agent", deliveriesByAgentHandler())
		deliveries.GET("/agent/:agent/pending", pendingDeliveriesByAgentHandler())
		deliveries.GET("/product/:sku", deliveriesByProductHandler())
		deliveries.GET("/date-range", deliveriesByDateRangeHandler())
		deliveries.GET("/damaged", damagedDeliveriesHandler())
		deliveries.GET("/delivered/date-range", deliveredByDateRangeHandler())
		deliveries.GET("/track", trackDeliveriesHandler())
		deliveries.GET("/agents", listDeliveryAgentNamesHandler())
		deliveries.PUT("/:id/status", updateDeliveryStatusHandler())
	}

	agent := r.Group("/api/delivery-agent", middlewares.RequireRole(string(models.RoleDeliveryTeam)))
	{
		agent.GET("/today", agentTodayHandler())
		agent.GET("/pending", agentPendingHandler())
		agent.GET("/delivered", agentDeliveredHandler())
		agent.PUT("/update", agentUpdateDeliveryHandler())
		agent.GET("/delivery/:deliveryId", agentDeliveryByIdHandler())
		agent.GET("/profile", getAgentProfileHandler())
		agent.POST("/profile", upsertAgentProfileHandler())
		agent.GET("/profile/complete", agentProfileCompleteHandler())
	}

	// Ops tooling: one-shot display-name reconciliation for legacy rows.
	r.POST("/internal/ops/agent-name-backfill",
		middlewares.RequireRole(string(models.RoleInventoryTeam)), agentNameBackfillHandler())

	r.NoRoute(customNotFoundHandler)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()

	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated); non-production allows all for developer convenience.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate can run DDL that blocks tables; SKIP_MIGRATIONS lets
	// deployments run migrations as a separate job instead.
	models.MigrateTable()

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
