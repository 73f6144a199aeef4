package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/api/internal/platform/requestctx"
	"github.com/oakmart/api/internal/services"
)

const (
	maxCallbackBodySize = 16 * 1024

	callbackRateLimit  = 60
	callbackRateWindow = time.Minute
)

// WebhookHandlers receives asynchronous PSP notifications. PayLink expects a
// bare text/plain body: "OK" acknowledges, anything else forces a redelivery.
type WebhookHandlers struct {
	reconciler services.ReconcilerService
	limiter    rateLimiter
}

// WebhookOption customises webhook handler construction.
type WebhookOption func(*WebhookHandlers)

// WithCallbackRateLimit overrides the per-caller callback budget per minute.
func WithCallbackRateLimit(limit int) WebhookOption {
	return func(h *WebhookHandlers) {
		if limit > 0 {
			h.limiter = newSimpleRateLimiter(limit, callbackRateWindow, time.Now)
		}
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(reconciler services.ReconcilerService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		reconciler: reconciler,
		limiter:    newSimpleRateLimiter(callbackRateLimit, callbackRateWindow, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/paylink", h.paylinkCallback)
}

type paylinkCallbackRequest struct {
	OrderReference string `json:"orderReference"`
	Status         string `json:"status"`
	TotalAmount    int64  `json:"totalAmount"`
	IntegrityToken string `json:"integrityToken"`
}

func (h *WebhookHandlers) paylinkCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.limiter != nil && !h.limiter.Allow(callerAddress(r)) {
		writeCallbackText(w, http.StatusTooManyRequests, "ERROR")
		return
	}
	if h.reconciler == nil {
		writeCallbackText(w, http.StatusServiceUnavailable, "ERROR")
		return
	}

	body, err := readLimitedBody(r, maxCallbackBodySize)
	if err != nil {
		writeCallbackText(w, http.StatusBadRequest, "ERROR")
		return
	}
	var req paylinkCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeCallbackText(w, http.StatusBadRequest, "ERROR")
		return
	}

	result, err := h.reconciler.ProcessCallback(ctx, services.PaymentCallbackCommand{
		OrderReference: strings.TrimSpace(req.OrderReference),
		Status:         req.Status,
		Amount:         req.TotalAmount,
		IntegrityToken: strings.TrimSpace(req.IntegrityToken),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCallbackSignature):
			logger.Warn("paylink callback rejected: signature mismatch")
			writeCallbackText(w, http.StatusBadRequest, "ERROR")
		case errors.Is(err, services.ErrCallbackUnknownStatus), errors.Is(err, services.ErrCallbackInvalidInput):
			writeCallbackText(w, http.StatusBadRequest, "ERROR")
		case errors.Is(err, services.ErrCallbackOrderNotFound):
			writeCallbackText(w, http.StatusNotFound, "ERROR")
		default:
			logger.Error("paylink callback processing failed")
			writeCallbackText(w, http.StatusServiceUnavailable, "ERROR")
		}
		return
	}

	if !result.Applied {
		logger.Info("paylink callback acknowledged without state change")
	}
	writeCallbackText(w, http.StatusOK, "OK")
}

func writeCallbackText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func callerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
