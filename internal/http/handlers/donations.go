package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

type DonationsHandler struct {
	Ledger *payments.Ledger
}

func NewDonationsHandler(l *payments.Ledger) *DonationsHandler {
	return &DonationsHandler{Ledger: l}
}

// GET /api/donations/fundraiser/:fundraiserId/stats
func (h *DonationsHandler) Stats(c *gin.Context) {
	st, err := h.Ledger.Stats(c.Request.Context(), c.Param("fundraiserId"))
	if err != nil {
		middleware.Fail(c, ledgerError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": st})
}

// GET /api/donations/fundraiser/:fundraiserId/top-donors?limit=
func (h *DonationsHandler) TopDonors(c *gin.Context) {
	top, err := h.Ledger.TopDonors(c.Request.Context(), c.Param("fundraiserId"), parseInt(c.Query("limit"), 10))
	if err != nil {
		middleware.Fail(c, ledgerError(err))
		return
	}
	if top == nil {
		top = []payments.DonorTotal{}
	}
	c.JSON(http.StatusOK, gin.H{"topDonors": top})
}

func ledgerError(err error) error {
	if errors.Is(err, campaigns.ErrNotFound) {
		return apperr.NotFoundErr("Fundraiser not found.")
	}
	return apperr.Wrap(err)
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
