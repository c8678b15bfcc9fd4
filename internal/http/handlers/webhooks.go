package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
)

const (
	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"
)

type WebhookHandler struct {
	Logger     *slog.Logger
	WebhookSvc *payments.WebhookService
}

func NewWebhookHandler(logger *slog.Logger, svc *payments.WebhookService) *WebhookHandler {
	return &WebhookHandler{Logger: logger, WebhookSvc: svc}
}

// POST /api/payments/webhook
// The body is read raw; the signature covers the exact bytes.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err = h.WebhookSvc.Handle(c.Request.Context(), body,
		c.GetHeader(HeaderWebhookSignature),
		c.GetHeader(HeaderWebhookEventID),
	)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, payments.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
	case errors.Is(err, payments.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
	default:
		// 500 so the processor redelivers
		h.Logger.ErrorContext(c.Request.Context(), "webhook failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook failed"})
	}
}
