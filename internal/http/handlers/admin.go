package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/http/validation"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

// AdminHandler exposes the manual reconciliation workflow.
type AdminHandler struct {
	Anomalies *payments.AnomalyQueue
	Engine    *payments.SettlementEngine
	Ledger    *payments.Ledger
}

func NewAdminHandler(q *payments.AnomalyQueue, e *payments.SettlementEngine, l *payments.Ledger) *AdminHandler {
	return &AdminHandler{Anomalies: q, Engine: e, Ledger: l}
}

type anomalyView struct {
	ID           string     `json:"id"`
	Reason       string     `json:"reason"`
	Source       string     `json:"source"`
	PaymentID    string     `json:"paymentId"`
	OrderID      string     `json:"orderId"`
	FundraiserID string     `json:"fundraiserId"`
	UserID       string     `json:"userId"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	Archived     bool       `json:"archived"`
	Note         *string    `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

func newAnomalyView(a payments.SettlementAnomaly) anomalyView {
	return anomalyView{
		ID:           a.ID,
		Reason:       a.Reason,
		Source:       a.Source,
		PaymentID:    a.ProviderPaymentID,
		OrderID:      a.ProviderOrderID,
		FundraiserID: a.CampaignID,
		UserID:       a.PayerID,
		Amount:       a.Amount,
		Currency:     a.Currency,
		Status:       a.Status,
		Archived:     a.ArchiveKey != nil,
		Note:         a.ResolutionNote,
		CreatedAt:    a.CreatedAt,
		ResolvedAt:   a.ResolvedAt,
	}
}

type donationView struct {
	ID           string    `json:"id"`
	FundraiserID string    `json:"fundraiserId"`
	UserID       string    `json:"userId"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	PaymentID    string    `json:"paymentId"`
	OrderID      string    `json:"orderId"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newDonationView(d payments.Donation) donationView {
	return donationView{
		ID:           d.ID,
		FundraiserID: d.CampaignID,
		UserID:       d.PayerID,
		Amount:       d.Amount,
		Currency:     d.Currency,
		PaymentID:    d.ProviderPaymentID,
		OrderID:      d.ProviderOrderID,
		Source:       d.Source,
		CreatedAt:    d.CreatedAt,
	}
}

// GET /api/admin/anomalies?limit=
func (h *AdminHandler) ListAnomalies(c *gin.Context) {
	items, err := h.Anomalies.ListOpen(c.Request.Context(), parseInt(c.Query("limit"), 100))
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	views := make([]anomalyView, 0, len(items))
	for _, a := range items {
		views = append(views, newAnomalyView(a))
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": views, "count": len(views)})
}

type resolveRequest struct {
	Note  string `json:"note" binding:"required,max=250"`
	Purge bool   `json:"purge"`
}

// POST /api/admin/anomalies/:id/resolve
func (h *AdminHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request.", validation.FromBindError(err, &req)))
		return
	}

	id := c.Param("id")
	if err := h.Anomalies.Resolve(c.Request.Context(), id, req.Note); err != nil {
		middleware.Fail(c, anomalyError(err))
		return
	}
	if req.Purge {
		if err := h.Anomalies.PurgeArchive(c.Request.Context(), id); err != nil {
			middleware.Fail(c, apperr.Wrap(err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": payments.AnomalyResolved})
}

type reattributeRequest struct {
	FundraiserID string `json:"fundraiserId" binding:"required,max=64"`
	UserID       string `json:"userId" binding:"max=64"`
	Note         string `json:"note" binding:"max=250"`
}

// POST /api/admin/anomalies/:id/reattribute
func (h *AdminHandler) Reattribute(c *gin.Context) {
	var req reattributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Engine.Reattribute(c.Request.Context(), c.Param("id"), req.FundraiserID, req.UserID, req.Note)
	if err != nil {
		middleware.Fail(c, anomalyError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"donation": newDonationView(res.Donation), "created": res.Created})
}

// GET /api/admin/reconcile/:fundraiserId
func (h *AdminHandler) Reconcile(c *gin.Context) {
	r, err := h.Ledger.Reconcile(c.Request.Context(), c.Param("fundraiserId"))
	if err != nil {
		middleware.Fail(c, ledgerError(err))
		return
	}
	c.JSON(http.StatusOK, r)
}

func anomalyError(err error) error {
	switch {
	case errors.Is(err, payments.ErrAnomalyNotFound):
		return apperr.NotFoundErr("Anomaly not found.")
	case errors.Is(err, payments.ErrAnomalyResolved):
		return apperr.ConflictErr("Anomaly is already resolved.")
	case errors.Is(err, payments.ErrNotReattributable):
		return apperr.ConflictErr("This anomaly cannot be settled against a fundraiser.")
	case errors.Is(err, payments.ErrCampaignNotFound):
		return apperr.InvalidErr("Fundraiser not found.", map[string]string{"fundraiserId": "Unknown fundraiser."})
	case errors.Is(err, payments.ErrMissingMetadata):
		return apperr.InvalidErr("A payer is required.", map[string]string{"userId": "This field is required."})
	default:
		return apperr.Wrap(err)
	}
}
