package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arsenic-art/DreamFundr/internal/storage"
)

// Anomaly describes a captured payment the ledger could not attribute.
type Anomaly struct {
	Reason     string
	Source     string
	PaymentID  string
	OrderID    string
	CampaignID string
	PayerID    string
	Amount     int64
	Currency   string
	RawPayload []byte // webhook body, when the anomaly came from one
}

// AnomalyQueue persists anomalies for manual review. Recording is
// idempotent per (payment id, reason); redeliveries do not pile up rows.
type AnomalyQueue struct {
	db      *gorm.DB
	archive storage.Storage // optional
	logger  *slog.Logger
}

func NewAnomalyQueue(db *gorm.DB, archive storage.Storage) *AnomalyQueue {
	return &AnomalyQueue{db: db, archive: archive, logger: slog.Default()}
}

func (q *AnomalyQueue) SetLogger(logger *slog.Logger) {
	q.logger = logger
}

func (q *AnomalyQueue) Record(ctx context.Context, a Anomaly) error {
	q.logger.ErrorContext(ctx, "settlement_anomaly",
		"manual_reconciliation", true,
		"reason", a.Reason,
		"source", a.Source,
		"payment_id", a.PaymentID,
		"order_id", a.OrderID,
		"campaign_id", a.CampaignID,
		"payer_id", a.PayerID,
		"amount", a.Amount,
		"currency", a.Currency,
	)

	row := SettlementAnomaly{
		ID:                uuid.NewString(),
		Source:            a.Source,
		Reason:            a.Reason,
		ProviderPaymentID: a.PaymentID,
		ProviderOrderID:   a.OrderID,
		CampaignID:        a.CampaignID,
		PayerID:           a.PayerID,
		Amount:            a.Amount,
		Currency:          a.Currency,
		Status:            AnomalyOpen,
		CreatedAt:         time.Now(),
	}
	if len(a.RawPayload) > 0 && json.Valid(a.RawPayload) {
		row.PayloadJSON = datatypes.JSON(a.RawPayload)
	}

	if q.archive != nil && len(a.RawPayload) > 0 {
		key := fmt.Sprintf("%s/%s-%s.json", row.CreatedAt.UTC().Format("2006/01/02"), a.PaymentID, a.Reason)
		res, err := q.archive.Put(ctx, bytes.NewReader(a.RawPayload), storage.PutInput{Key: key, ContentType: "application/json"})
		if err != nil {
			// the row below still carries the payload
			q.logger.WarnContext(ctx, "anomaly payload archive failed", "payment_id", a.PaymentID, "err", err)
		} else {
			row.ArchiveKey = &res.Key
		}
	}

	return q.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (q *AnomalyQueue) ListOpen(ctx context.Context, limit int) ([]SettlementAnomaly, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []SettlementAnomaly
	err := q.db.WithContext(ctx).
		Where("status = ?", AnomalyOpen).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (q *AnomalyQueue) Get(ctx context.Context, id string) (SettlementAnomaly, error) {
	var a SettlementAnomaly
	if err := q.db.WithContext(ctx).Take(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SettlementAnomaly{}, ErrAnomalyNotFound
		}
		return SettlementAnomaly{}, err
	}
	return a, nil
}

// Resolve closes an open anomaly. Closing twice reports ErrAnomalyResolved.
func (q *AnomalyQueue) Resolve(ctx context.Context, id, note string) error {
	now := time.Now()
	res := q.db.WithContext(ctx).Model(&SettlementAnomaly{}).
		Where("id = ? AND status = ?", id, AnomalyOpen).
		Updates(map[string]any{
			"status":          AnomalyResolved,
			"resolution_note": truncate(note, 250),
			"resolved_at":     &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := q.Get(ctx, id); err != nil {
			return err
		}
		return ErrAnomalyResolved
	}
	return nil
}

// ResolvePayment closes open settlement anomalies for paymentID and
// reports how many it closed. Refund anomalies are left open.
func (q *AnomalyQueue) ResolvePayment(ctx context.Context, paymentID, note string) (int64, error) {
	now := time.Now()
	res := q.db.WithContext(ctx).Model(&SettlementAnomaly{}).
		Where("provider_payment_id = ? AND status = ? AND reason IN ?", paymentID, AnomalyOpen, settlementReasons).
		Updates(map[string]any{
			"status":          AnomalyResolved,
			"resolution_note": truncate(note, 250),
			"resolved_at":     &now,
		})
	return res.RowsAffected, res.Error
}

// PurgeArchive removes the archived payload of a resolved anomaly.
func (q *AnomalyQueue) PurgeArchive(ctx context.Context, id string) error {
	a, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != AnomalyResolved || a.ArchiveKey == nil || q.archive == nil {
		return nil
	}
	if err := q.archive.Delete(ctx, *a.ArchiveKey); err != nil {
		return err
	}
	return q.db.WithContext(ctx).Model(&SettlementAnomaly{}).
		Where("id = ?", id).
		Update("archive_key", nil).Error
}
