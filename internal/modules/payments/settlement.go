package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
)

// SettleInput is a verified capture. Amount is the processor's amount in
// minor units; callers never pass a client-supplied figure here.
type SettleInput struct {
	PaymentID  string
	OrderID    string
	CampaignID string
	PayerID    string
	Amount     int64
	Currency   string
	Signature  string
	Source     string
	RawPayload []byte // kept with anomalies only
}

type SettleResult struct {
	Donation Donation
	// Created is false when the payment had already been settled.
	Created bool
}

// SettlementEngine records each captured payment exactly once. The unique
// index on donations.provider_payment_id is the final arbiter: when two
// callers race past the lookup, the loser's insert fails and it returns
// the winner's row.
type SettlementEngine struct {
	db        *gorm.DB
	anomalies *AnomalyQueue
	logger    *slog.Logger
}

func NewSettlementEngine(db *gorm.DB, anomalies *AnomalyQueue) *SettlementEngine {
	return &SettlementEngine{db: db, anomalies: anomalies, logger: slog.Default()}
}

func (e *SettlementEngine) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// Settle records a captured payment once. An already settled payment id
// returns its Donation unchanged, whatever metadata the duplicate carries.
// Any open anomaly parked for the payment is closed once it settles.
func (e *SettlementEngine) Settle(ctx context.Context, in SettleInput) (SettleResult, error) {
	res, err := e.settle(ctx, in)
	if err == nil {
		e.closeParked(ctx, in)
	}
	return res, err
}

func (e *SettlementEngine) settle(ctx context.Context, in SettleInput) (SettleResult, error) {
	if in.PaymentID == "" {
		return SettleResult{}, fmt.Errorf("%w: payment id is required", ErrMalformedEvent)
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := e.settleOnce(ctx, in)
		switch {
		case err == nil:
			if res.Created {
				e.logger.InfoContext(ctx, "donation settled",
					"payment_id", in.PaymentID,
					"campaign_id", in.CampaignID,
					"amount", in.Amount,
					"source", in.Source,
				)
			} else {
				e.logger.InfoContext(ctx, "settlement deduplicated",
					"payment_id", in.PaymentID,
					"source", in.Source,
					"settled_by", res.Donation.Source,
				)
			}
			return res, nil
		case isDup(err):
			return e.loadWinner(ctx, in)
		case errors.Is(err, ErrMissingMetadata):
			return SettleResult{}, e.anomaly(ctx, in, ReasonMissingMetadata, ErrMissingMetadata)
		case errors.Is(err, ErrInvalidAmount):
			return SettleResult{}, e.anomaly(ctx, in, ReasonInvalidAmount, ErrInvalidAmount)
		case errors.Is(err, ErrCampaignNotFound):
			return SettleResult{}, e.anomaly(ctx, in, ReasonCampaignNotFound, ErrCampaignNotFound)
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		e.logger.WarnContext(ctx, "settlement attempt failed", "payment_id", in.PaymentID, "attempt", attempt, "err", err)
	}
	return SettleResult{}, fmt.Errorf("%w: %w", ErrStorageConflict, lastErr)
}

// validate runs only for payments with no Donation yet.
func (in SettleInput) validate() error {
	if in.CampaignID == "" || in.PayerID == "" {
		return ErrMissingMetadata
	}
	if in.OrderID == "" && in.Source != SourceManual {
		return ErrMissingMetadata
	}
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e *SettlementEngine) settleOnce(ctx context.Context, in SettleInput) (SettleResult, error) {
	var res SettleResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Donation
		err := tx.Take(&existing, "provider_payment_id = ?", in.PaymentID).Error
		if err == nil {
			res = SettleResult{Donation: existing}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := in.validate(); err != nil {
			return err
		}

		var c campaigns.Campaign
		if err := tx.Select("id", "currency").Take(&c, "id = ?", in.CampaignID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return err
		}

		currency := in.Currency
		if currency == "" {
			currency = c.Currency
		}
		d := Donation{
			ID:                uuid.NewString(),
			CampaignID:        in.CampaignID,
			PayerID:           in.PayerID,
			Amount:            in.Amount,
			Currency:          currency,
			ProviderOrderID:   in.OrderID,
			ProviderPaymentID: in.PaymentID,
			Signature:         truncate(in.Signature, 255),
			Source:            in.Source,
			CreatedAt:         time.Now(),
		}
		if err := tx.Create(&d).Error; err != nil {
			return err
		}

		upd := tx.Model(&campaigns.Campaign{}).
			Where("id = ?", in.CampaignID).
			UpdateColumns(map[string]any{
				"raised_amount": gorm.Expr("raised_amount + ?", in.Amount),
				"updated_at":    time.Now(),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrCampaignNotFound
		}

		res = SettleResult{Donation: d, Created: true}
		return nil
	})
	return res, err
}

// loadWinner reads the row committed by the transaction that won the
// unique index. It runs outside the failed transaction.
func (e *SettlementEngine) loadWinner(ctx context.Context, in SettleInput) (SettleResult, error) {
	var d Donation
	if err := e.db.WithContext(ctx).Take(&d, "provider_payment_id = ?", in.PaymentID).Error; err != nil {
		return SettleResult{}, fmt.Errorf("%w: reload after unique violation: %w", ErrStorageConflict, err)
	}
	if d.Amount != in.Amount {
		e.logger.WarnContext(ctx, "settled amount differs from duplicate notification",
			"payment_id", in.PaymentID, "settled", d.Amount, "notified", in.Amount)
	}
	e.logger.InfoContext(ctx, "settlement race lost to concurrent writer", "payment_id", in.PaymentID, "source", in.Source)
	return SettleResult{Donation: d}, nil
}

// closeParked resolves settlement anomalies left by earlier notifications
// of a payment that has now settled.
func (e *SettlementEngine) closeParked(ctx context.Context, in SettleInput) {
	if e.anomalies == nil {
		return
	}
	n, err := e.anomalies.ResolvePayment(ctx, in.PaymentID, "settled via "+in.Source)
	if err != nil {
		e.logger.WarnContext(ctx, "closing parked anomalies failed", "payment_id", in.PaymentID, "err", err)
		return
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "parked anomalies closed by settlement", "payment_id", in.PaymentID, "count", n)
	}
}

// anomaly parks the payment in the dead-letter queue and returns cause.
// A failure to record is a storage failure, so callers retry.
func (e *SettlementEngine) anomaly(ctx context.Context, in SettleInput, reason string, cause error) error {
	if e.anomalies == nil {
		return cause
	}
	err := e.anomalies.Record(ctx, Anomaly{
		Reason:     reason,
		Source:     in.Source,
		PaymentID:  in.PaymentID,
		OrderID:    in.OrderID,
		CampaignID: in.CampaignID,
		PayerID:    in.PayerID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		RawPayload: in.RawPayload,
	})
	if err != nil {
		return fmt.Errorf("%w: record anomaly (%v): %w", ErrStorageConflict, cause, err)
	}
	return cause
}

// Reattribute settles an open anomaly against campaignID and closes it.
// payerID overrides the payer recorded on the anomaly when non-empty.
func (e *SettlementEngine) Reattribute(ctx context.Context, anomalyID, campaignID, payerID, note string) (SettleResult, error) {
	a, err := e.anomalies.Get(ctx, anomalyID)
	if err != nil {
		return SettleResult{}, err
	}
	if a.Status != AnomalyOpen {
		return SettleResult{}, ErrAnomalyResolved
	}
	if a.Reason != ReasonCampaignNotFound && a.Reason != ReasonMissingMetadata {
		return SettleResult{}, ErrNotReattributable
	}
	if payerID == "" {
		payerID = a.PayerID
	}
	if payerID == "" {
		return SettleResult{}, ErrMissingMetadata
	}
	// checked up front so a typo does not park a second anomaly
	if err := e.db.WithContext(ctx).Select("id").Take(&campaigns.Campaign{}, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SettleResult{}, ErrCampaignNotFound
		}
		return SettleResult{}, err
	}

	// settle, not Settle: the anomaly is closed below with the operator's note
	res, err := e.settle(ctx, SettleInput{
		PaymentID:  a.ProviderPaymentID,
		OrderID:    a.ProviderOrderID,
		CampaignID: campaignID,
		PayerID:    payerID,
		Amount:     a.Amount,
		Currency:   a.Currency,
		Signature:  "manual:" + a.ID,
		Source:     SourceManual,
	})
	if err != nil {
		return SettleResult{}, err
	}

	if note == "" {
		note = "reattributed to campaign " + campaignID
	}
	if err := e.anomalies.Resolve(ctx, a.ID, note); err != nil && !errors.Is(err, ErrAnomalyResolved) {
		return res, err
	}
	e.closeParked(ctx, SettleInput{PaymentID: a.ProviderPaymentID, Source: SourceManual})
	return res, nil
}
