package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"registration-service/internal/service"
	"registration-service/internal/util"
	"registration-service/internal/wechat"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	payments      *service.PaymentService
	reconciler    *service.Reconciler
	registrations *service.RegistrationService
	auth          *service.AuthService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	payments *service.PaymentService,
	reconciler *service.Reconciler,
	registrations *service.RegistrationService,
	auth *service.AuthService,
) *Handler {
	return &Handler{
		payments:      payments,
		reconciler:    reconciler,
		registrations: registrations,
		auth:          auth,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/login", h.login)
		v1.GET("/batches", h.listBatches)
		v1.GET("/batches/:id", h.getBatch)
		v1.POST("/registrations", h.createRegistration)
		v1.GET("/registrations", h.listRegistrations)
		v1.POST("/pay/initiate", h.initiatePayment)
		v1.POST("/pay/notify", h.paymentNotify)
		v1.GET("/pay/orders/:orderNo", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// login exchanges a mini-program code for a session token
func (h *Handler) login(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req.Code)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// listBatches returns batches open for signup
func (h *Handler) listBatches(c *gin.Context) {
	batches, err := h.registrations.ListOpenBatches(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list batches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// getBatch returns one batch by ID
func (h *Handler) getBatch(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch ID"})
		return
	}

	batch, err := h.registrations.GetBatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// createRegistration handles signup submissions
func (h *Handler) createRegistration(c *gin.Context) {
	var req service.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	reg, err := h.registrations.CreateRegistration(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, reg)
}

// listRegistrations returns registrations for a payer identity
func (h *Handler) listRegistrations(c *gin.Context) {
	regs, err := h.registrations.ListRegistrations(c.Request.Context(), c.Query("openid"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

// initiatePayment starts a payment for a registration fee
func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.payments.InitiatePayment(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// paymentNotify receives the provider's asynchronous payment result. The
// response is always HTTP 200 with an XML ack body; the provider reads the
// outcome from the body and retries until it sees SUCCESS.
func (h *Handler) paymentNotify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Data(http.StatusOK, "text/xml", wechat.AckFail("unreadable body").Encode())
		return
	}

	ack := h.reconciler.Reconcile(c.Request.Context(), body)
	c.Data(http.StatusOK, "text/xml", ack.Encode())
}

// getOrder returns a payment order by order number
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.payments.GetOrder(c.Request.Context(), c.Param("orderNo"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var providerErr *service.ProviderError
	var persistenceErr *service.PersistenceError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &providerErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider unavailable", "details": providerErr.Error()})
	case errors.As(err, &persistenceErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": persistenceErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
