package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/http/validation"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

const (
	msgVerified     = "Payment verified successfully"
	msgVerifyFailed = "Payment verification failed, please contact support"
)

type PaymentsHandler struct {
	Logger  *slog.Logger
	Orders  *payments.OrderService
	Confirm *payments.ConfirmationService
}

func NewPaymentsHandler(logger *slog.Logger, orders *payments.OrderService, confirm *payments.ConfirmationService) *PaymentsHandler {
	return &PaymentsHandler{Logger: logger, Orders: orders, Confirm: confirm}
}

type createOrderRequest struct {
	Amount       int64  `json:"amount" binding:"required,gt=0"` // minor units
	FundraiserID string `json:"fundraiserId" binding:"required,max=64"`
}

// POST /api/payments/create-order
func (h *PaymentsHandler) CreateOrder(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Orders.CreateOrder(c.Request.Context(), payments.CreateOrderInput{
		Amount:     req.Amount,
		CampaignID: req.FundraiserID,
		PayerID:    u.ID,
	})
	if err != nil {
		middleware.Fail(c, orderError(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func orderError(err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidAmount):
		return apperr.InvalidErr("Invalid amount.", map[string]string{"amount": "Amount is out of range."})
	case errors.Is(err, payments.ErrCampaignUnavailable):
		return apperr.NotFoundErr("Fundraiser not available.")
	case errors.Is(err, payments.ErrProcessor):
		return apperr.UpstreamErr("Payment provider is unavailable, please retry.", err)
	default:
		return apperr.Wrap(err)
	}
}

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required,max=64"`
	PaymentID string `json:"razorpay_payment_id" binding:"required,max=64"`
	Signature string `json:"razorpay_signature" binding:"required,max=128"`
	Amount    *int64 `json:"amount"` // informational
}

// POST /api/payments/verify
func (h *PaymentsHandler) Verify(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Confirm.VerifyPayment(c.Request.Context(), payments.VerifyPaymentInput{
		OrderID:        req.OrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
		ClientAmount:   req.Amount,
		SessionPayerID: u.ID,
	})
	if err != nil {
		middleware.Fail(c, verifyError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msgVerified, "amount": res.Amount})
}

// verifyError keeps the payer-facing message uniform; details go to logs.
func verifyError(err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: msgVerifyFailed, Err: err}
	case errors.Is(err, payments.ErrProcessor):
		return apperr.UpstreamErr(msgVerifyFailed, err)
	default:
		return apperr.WrapMsg(err, msgVerifyFailed)
	}
}
