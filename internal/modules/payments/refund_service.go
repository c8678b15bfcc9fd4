package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
)

type RefundInput struct {
	RefundID  string
	PaymentID string
	Amount    int64
	Currency  string
	// RawPayload is kept when the refund has to be parked.
	RawPayload []byte
}

type RefundResult struct {
	Refund Refund
	// Applied is false for unknown payments, replayed refund ids and
	// refunds against a fully refunded donation.
	Applied bool
	// Parked is set when no Donation matched and the refund went to the
	// anomaly queue.
	Parked bool
}

type RefundService struct {
	db        *gorm.DB
	anomalies *AnomalyQueue // optional
	logger    *slog.Logger
}

func NewRefundService(db *gorm.DB, anomalies *AnomalyQueue) *RefundService {
	return &RefundService{db: db, anomalies: anomalies, logger: slog.Default()}
}

func (s *RefundService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Apply decrements the campaign by a processor refund, at most once per
// refund id. The amount is capped at the donation's unrefunded remainder.
func (s *RefundService) Apply(ctx context.Context, in RefundInput) (RefundResult, error) {
	if in.RefundID == "" || in.PaymentID == "" || in.Amount <= 0 {
		return RefundResult{}, ErrMalformedEvent
	}

	var res RefundResult
	unmatched := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior Refund
		err := tx.Take(&prior, "provider_refund_id = ?", in.RefundID).Error
		if err == nil {
			res = RefundResult{Refund: prior}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var d Donation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&d, "provider_payment_id = ?", in.PaymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				unmatched = true
				return nil
			}
			return err
		}

		amount := in.Amount
		if remaining := d.Amount - d.RefundedAmount; amount > remaining {
			s.logger.WarnContext(ctx, "refund exceeds unrefunded remainder, capping",
				"refund_id", in.RefundID, "payment_id", in.PaymentID, "requested", in.Amount, "remaining", remaining)
			amount = remaining
		}
		if amount <= 0 {
			return nil
		}

		currency := in.Currency
		if currency == "" {
			currency = d.Currency
		}
		r := Refund{
			ID:                uuid.NewString(),
			ProviderRefundID:  in.RefundID,
			ProviderPaymentID: in.PaymentID,
			DonationID:        d.ID,
			CampaignID:        d.CampaignID,
			Amount:            amount,
			Currency:          currency,
			CreatedAt:         time.Now(),
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}

		if err := tx.Model(&Donation{}).
			Where("id = ?", d.ID).
			UpdateColumn("refunded_amount", gorm.Expr("refunded_amount + ?", amount)).Error; err != nil {
			return err
		}

		// clamp at zero; raised_amount is never negative
		if err := tx.Model(&campaigns.Campaign{}).
			Where("id = ?", d.CampaignID).
			UpdateColumns(map[string]any{
				"raised_amount": gorm.Expr("CASE WHEN raised_amount > ? THEN raised_amount - ? ELSE 0 END", amount, amount),
				"updated_at":    time.Now(),
			}).Error; err != nil {
			return err
		}

		res = RefundResult{Refund: r, Applied: true}
		return nil
	})
	if err != nil {
		if isDup(err) {
			s.logger.InfoContext(ctx, "refund deduplicated by concurrent writer", "refund_id", in.RefundID)
			return RefundResult{}, nil
		}
		return RefundResult{}, err
	}

	if unmatched {
		return s.park(ctx, in)
	}
	if res.Applied {
		s.logger.InfoContext(ctx, "refund applied",
			"refund_id", in.RefundID, "payment_id", in.PaymentID, "campaign_id", res.Refund.CampaignID, "amount", res.Refund.Amount)
	}
	return res, nil
}

// park records a refund that arrived before, or without, its capture. The
// ledger is left untouched; an operator settles it against the processor.
func (s *RefundService) park(ctx context.Context, in RefundInput) (RefundResult, error) {
	s.logger.WarnContext(ctx, "refund for unknown payment parked", "refund_id", in.RefundID, "payment_id", in.PaymentID)
	if s.anomalies == nil {
		return RefundResult{}, nil
	}
	err := s.anomalies.Record(ctx, Anomaly{
		Reason:     ReasonRefundUnmatched,
		Source:     SourceWebhook,
		PaymentID:  in.PaymentID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		RawPayload: in.RawPayload,
	})
	if err != nil {
		return RefundResult{}, fmt.Errorf("%w: record unmatched refund: %w", ErrStorageConflict, err)
	}
	return RefundResult{Parked: true}, nil
}
