package api

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/notify"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	requests     *service.RequestService
	offers       *service.OfferService
	appointments *service.AppointmentService
	wallets      *service.WalletService
	ratings      *service.RatingService
	search       *service.SearchService
	whatsapp     config.WhatsAppConfig
}

// NewHandler creates a new HTTP handler
func NewHandler(
	requests *service.RequestService,
	offers *service.OfferService,
	appointments *service.AppointmentService,
	wallets *service.WalletService,
	ratings *service.RatingService,
	search *service.SearchService,
	whatsapp config.WhatsAppConfig,
) *Handler {
	return &Handler{
		requests:     requests,
		offers:       offers,
		appointments: appointments,
		wallets:      wallets,
		ratings:      ratings,
		search:       search,
		whatsapp:     whatsapp,
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

	router.POST("/webhooks/whatsapp", h.whatsappWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/requests", h.createRequest)
		v1.GET("/requests/:id", h.getRequest)
		v1.GET("/requests/:id/quotes", h.getQuotes)
		v1.POST("/requests/:id/select", h.selectOffer)
		v1.POST("/requests/:id/cancel", h.cancelRequest)
		v1.POST("/requests/:id/complete", h.completeRequest)
		v1.DELETE("/requests/:id", h.deleteRequest)

		v1.GET("/requests/:id/messages", h.getMessages)
		v1.POST("/requests/:id/messages", h.addMessage)

		v1.GET("/requests/:id/rating", h.getRating)
		v1.POST("/requests/:id/rating", h.rateRequest)
		v1.DELETE("/ratings/:id", h.deleteRating)

		v1.GET("/requests/:id/appointment", h.getAppointment)
		v1.POST("/requests/:id/appointment", h.proposeAppointment)
		v1.POST("/appointments/:id/provider-confirm", h.providerConfirmAppointment)
		v1.POST("/appointments/:id/provider-reject", h.providerRejectAppointment)
		v1.POST("/appointments/:id/customer-confirm", h.customerConfirmAppointment)
		v1.POST("/appointments/:id/cancel", h.cancelAppointment)
		v1.POST("/appointments/:id/complete", h.completeAppointment)

		v1.POST("/offers/:id/accept", h.acceptOffer)
		v1.POST("/offers/:id/reject", h.rejectOffer)

		v1.GET("/customers/:id/requests", h.listCustomerRequests)

		v1.GET("/providers", h.searchProviders)
		v1.GET("/providers/:id/wallet", h.getWallet)
		v1.GET("/providers/:id/wallet/transactions", h.listTransactions)
		v1.POST("/providers/:id/wallet/topup", h.topupWallet)
		v1.GET("/providers/:id/wallet/reconcile", h.reconcileWallet)

		v1.GET("/credit-packages", h.listCreditPackages)
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

// writeError maps service and store errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, store.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "State conflict", "details": err.Error()})
	case errors.Is(err, store.ErrInsufficientCredit):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credit", "details": err.Error()})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// createRequest handles service request creation
func (h *Handler) createRequest(c *gin.Context) {
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.requests.CreateRequest(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// getRequest handles get request by ID
func (h *Handler) getRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, offers, err := h.requests.GetRequest(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request": req,
		"offers":  offers,
	})
}

// getQuotes returns a request's accepted offers, scored best-first
func (h *Handler) getQuotes(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	quotes, err := h.requests.GetQuotes(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

// selectOffer handles the customer picking a winning offer
func (h *Handler) selectOffer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		OfferID int64 `json:"offer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	offer, err := h.requests.SelectOffer(c.Request.Context(), id, body.OfferID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// cancelRequest handles customer cancellation of an unmatched request
func (h *Handler) cancelRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.requests.CancelRequest(c.Request.Context(), id, body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// completeRequest handles marking a matched request done
func (h *Handler) completeRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.requests.CompleteRequest(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// deleteRequest removes a previously cancelled request
func (h *Handler) deleteRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.requests.DeleteRequest(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// listCustomerRequests lists a customer's requests
func (h *Handler) listCustomerRequests(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	reqs, err := h.requests.ListCustomerRequests(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// getMessages returns a request's message thread
func (h *Handler) getMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	msgs, err := h.requests.GetMessages(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// addMessage appends to a request's message thread
func (h *Handler) addMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		SenderRole string `json:"sender_role" binding:"required"`
		Body       string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	msg, err := h.requests.AddMessage(c.Request.Context(), id, body.SenderRole, body.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// rateRequest records the customer's rating for a completed request
func (h *Handler) rateRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		CustomerID int64  `json:"customer_id" binding:"required"`
		Score      int    `json:"score" binding:"required"`
		Comment    string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	rating, err := h.ratings.RateRequest(c.Request.Context(), id, body.CustomerID, body.Score, body.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rating": rating})
}

// getRating returns the rating left on a request
func (h *Handler) getRating(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	rating, err := h.ratings.GetRating(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rating": rating})
}

// deleteRating withdraws a rating
func (h *Handler) deleteRating(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.ratings.DeleteRating(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// proposeAppointment creates or reschedules a request's appointment
func (h *Handler) proposeAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
		CustomerNote string    `json:"customer_note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	appt, err := h.appointments.Propose(c.Request.Context(), id, body.ScheduledFor, body.CustomerNote)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"appointment": appt})
}

// getAppointment returns a request's appointment
func (h *Handler) getAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	appt, err := h.appointments.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment": appt})
}

func (h *Handler) providerConfirmAppointment(c *gin.Context) {
	h.transitionAppointment(c, func(c *gin.Context, id int64, note string) error {
		return h.appointments.ProviderConfirm(c.Request.Context(), id, note)
	})
}

func (h *Handler) providerRejectAppointment(c *gin.Context) {
	h.transitionAppointment(c, func(c *gin.Context, id int64, note string) error {
		return h.appointments.ProviderReject(c.Request.Context(), id, note)
	})
}

func (h *Handler) customerConfirmAppointment(c *gin.Context) {
	h.transitionAppointment(c, func(c *gin.Context, id int64, _ string) error {
		return h.appointments.CustomerConfirm(c.Request.Context(), id)
	})
}

func (h *Handler) cancelAppointment(c *gin.Context) {
	h.transitionAppointment(c, func(c *gin.Context, id int64, _ string) error {
		return h.appointments.Cancel(c.Request.Context(), id)
	})
}

func (h *Handler) transitionAppointment(c *gin.Context, fn func(*gin.Context, int64, string) error) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		ProviderNote string `json:"provider_note"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := fn(c, id, body.ProviderNote); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// completeAppointment closes a confirmed appointment after the visit
func (h *Handler) completeAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	appt, err := h.appointments.ProviderComplete(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment": appt})
}

// acceptOffer records a provider's quote on an offer
func (h *Handler) acceptOffer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		QuoteAmount int64  `json:"quote_amount" binding:"required"`
		QuoteNote   string `json:"quote_note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	offer, err := h.offers.AcceptOffer(c.Request.Context(), id, &body.QuoteAmount, body.QuoteNote)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// rejectOffer records a provider's decline
func (h *Handler) rejectOffer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.offers.RejectOffer(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// searchProviders queries the provider directory
func (h *Handler) searchProviders(c *gin.Context) {
	params := service.SearchParams{
		City:     c.Query("city"),
		District: c.Query("district"),
	}
	if v := c.Query("service_type_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service_type_id"})
			return
		}
		params.ServiceTypeID = id
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		params.Limit = limit
	}
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr != "" && lonStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lon, errLon := strconv.ParseFloat(lonStr, 64)
		if errLat != nil || errLon != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates"})
			return
		}
		params.Latitude, params.Longitude = &lat, &lon
	}

	results, err := h.search.SearchProviders(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": results})
}

// getWallet returns a provider's credit balance
func (h *Handler) getWallet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	balance, err := h.wallets.GetBalance(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": id, "balance": balance})
}

// listTransactions returns a provider's credit ledger
func (h *Handler) listTransactions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	txs, err := h.wallets.ListTransactions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// topupWallet credits a provider's wallet with a named package
func (h *Handler) topupWallet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		PackageKey string `json:"package_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	balance, err := h.wallets.Topup(c.Request.Context(), id, body.PackageKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": id, "balance": balance})
}

// reconcileWallet checks the provider's ledger sums to the balance
func (h *Handler) reconcileWallet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	consistent, err := h.wallets.Reconcile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": id, "consistent": consistent})
}

// listCreditPackages lists the purchasable credit packages
func (h *Handler) listCreditPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": h.wallets.Packages()})
}

// whatsappWebhook receives Twilio inbound messages and replies with TwiML
func (h *Handler) whatsappWebhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "bad form")
		return
	}

	if h.whatsapp.ValidateSignature {
		url := requestURL(c)
		sig := c.GetHeader("X-Twilio-Signature")
		if !notify.ValidTwilioSignature(url, c.Request.PostForm, h.whatsapp.AuthToken, sig) {
			c.String(http.StatusForbidden, "invalid signature")
			return
		}
	}

	from := c.Request.PostForm.Get("From")
	body := c.Request.PostForm.Get("Body")

	outcome, err := h.offers.HandleReply(c.Request.Context(), from, body)
	if err != nil {
		util.GetLogger().Error("WhatsApp reply handling failed", zap.Error(err))
		twiml(c, "Something went wrong on our side. Please try again shortly.")
		return
	}
	twiml(c, outcome.Message)
}

func requestURL(c *gin.Context) string {
	scheme := "https"
	if c.Request.TLS == nil {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func twiml(c *gin.Context, message string) {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(message))
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, "<?xml version=\"1.0\" encoding=\"UTF-8\"?><Response><Message>%s</Message></Response>", escaped.String())
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
