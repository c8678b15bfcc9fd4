package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/http/validation"
	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

// FundraisersHandler opens and closes campaigns for their owners. Orders
// are only issued against open campaigns.
type FundraisersHandler struct {
	Repo     *campaigns.Repo
	Currency string
}

func NewFundraisersHandler(repo *campaigns.Repo, currency string) *FundraisersHandler {
	return &FundraisersHandler{Repo: repo, Currency: currency}
}

type createFundraiserRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description" binding:"max=5000"`
	GoalAmount  int64  `json:"goalAmount" binding:"required,gt=0"` // minor units
}

// POST /api/fundraisers
func (h *FundraisersHandler) Create(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req createFundraiserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request.", validation.FromBindError(err, &req)))
		return
	}

	f, err := h.Repo.Create(c.Request.Context(), campaigns.CreateInput{
		OwnerID:     u.ID,
		Title:       req.Title,
		Description: req.Description,
		GoalAmount:  req.GoalAmount,
		Currency:    h.Currency,
	})
	if err != nil {
		middleware.Fail(c, fundraiserError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":           f.ID,
		"title":        f.Title,
		"goalAmount":   f.GoalAmount,
		"raisedAmount": f.RaisedAmount,
		"currency":     f.Currency,
		"isActive":     f.IsActive,
	})
}

// POST /api/fundraisers/:fundraiserId/close
func (h *FundraisersHandler) Close(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	if err := h.Repo.Deactivate(c.Request.Context(), c.Param("fundraiserId"), u.ID); err != nil {
		middleware.Fail(c, fundraiserError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"isActive": false})
}

func fundraiserError(err error) error {
	switch {
	case errors.Is(err, campaigns.ErrNotFound):
		return apperr.NotFoundErr("Fundraiser not found.")
	case errors.Is(err, campaigns.ErrNotOwner):
		return apperr.ForbiddenErr("Only the owner can close this fundraiser.")
	case errors.Is(err, campaigns.ErrMissingTitle):
		return apperr.InvalidErr("Invalid request.", map[string]string{"title": "This field is required."})
	case errors.Is(err, campaigns.ErrInvalidGoal):
		return apperr.InvalidErr("Invalid request.", map[string]string{"goalAmount": "Must be greater than 0."})
	default:
		return apperr.Wrap(err)
	}
}
