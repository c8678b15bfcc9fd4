package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const orderLookupTimeout = 10 * time.Second

// WebhookService applies processor events. Every delivery that gets past
// signature checks is logged in provider_events; a delivery whose id is
// already marked processed short-circuits.
type WebhookService struct {
	db       *gorm.DB
	provider string
	verifier Verifier
	engine   *SettlementEngine
	refunds  *RefundService
	orders   Provider // optional, backfills captures delivered without notes
	logger   *slog.Logger
}

func NewWebhookService(db *gorm.DB, provider string, v Verifier, e *SettlementEngine, r *RefundService) *WebhookService {
	return &WebhookService{db: db, provider: provider, verifier: v, engine: e, refunds: r, logger: slog.Default()}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetOrderLookup lets captures whose notes are empty take the payer and
// campaign from the processor order instead of being parked.
func (s *WebhookService) SetOrderLookup(p Provider) {
	s.orders = p
}

// Handle verifies and applies one delivery. A nil error means the event is
// durably handled, a duplicate, or a no-op and should be acknowledged.
func (s *WebhookService) Handle(ctx context.Context, rawBody []byte, signature, eventID string) error {
	if err := s.verifier.VerifyWebhook(rawBody, signature); err != nil {
		s.logger.WarnContext(ctx, "signature_rejected",
			"path", SourceWebhook,
			"event_id", eventID,
			"has_signature", signature != "",
			"body_bytes", len(rawBody),
		)
		return err
	}

	ev, err := ParseWebhook(rawBody, eventID)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook event rejected", "event_id", eventID, "err", err)
		return err
	}

	done, err := s.alreadyProcessed(ctx, ev.ID)
	if err != nil {
		return err
	}
	if done {
		s.logger.InfoContext(ctx, "webhook event deduplicated", "provider", s.provider, "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	applyErr := s.apply(ctx, ev, rawBody)
	if applyErr != nil {
		s.logger.ErrorContext(ctx, "webhook event apply failed", "provider", s.provider, "event_id", ev.ID, "type", ev.Type, "err", applyErr)
	}
	if err := s.logEvent(ctx, ev, rawBody, applyErr); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist provider event", "provider", s.provider, "event_id", ev.ID, "err", err)
		if applyErr == nil {
			// applied but unlogged: a redelivery dedupes in the engine
			return nil
		}
	}
	return applyErr
}

func (s *WebhookService) apply(ctx context.Context, ev WebhookEvent, rawBody []byte) error {
	switch ev.Type {
	case EventPaymentCaptured:
		p := ev.Payment
		notes := s.orderNotes(ctx, p)
		_, err := s.engine.Settle(ctx, SettleInput{
			PaymentID:  p.ID,
			OrderID:    p.OrderID,
			CampaignID: notes.CampaignID,
			PayerID:    notes.PayerID,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Signature:  WebhookSignature,
			Source:     SourceWebhook,
			RawPayload: rawBody,
		})
		if isParked(err) {
			// parked for manual reconciliation; redelivery cannot help
			return nil
		}
		return err

	case EventPaymentFailed:
		s.logger.InfoContext(ctx, "payment failed at processor",
			"payment_id", ev.Payment.ID, "order_id", ev.Payment.OrderID, "campaign_id", ev.Payment.Notes.CampaignID)
		return nil

	case EventRefundCreated:
		r := ev.Refund
		_, err := s.refunds.Apply(ctx, RefundInput{
			RefundID:   r.ID,
			PaymentID:  r.PaymentID,
			Amount:     r.Amount,
			Currency:   r.Currency,
			RawPayload: rawBody,
		})
		return err

	default:
		s.logger.InfoContext(ctx, "webhook event type ignored", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
}

// orderNotes returns the payment's notes, completed from the processor
// order when the checkout did not copy them onto the payment.
func (s *WebhookService) orderNotes(ctx context.Context, p *PaymentEntity) Notes {
	notes := p.Notes
	if notes.Complete() || s.orders == nil || p.OrderID == "" {
		return notes
	}

	octx, cancel := context.WithTimeout(ctx, orderLookupTimeout)
	defer cancel()
	order, err := s.orders.FetchOrder(octx, p.OrderID)
	if err != nil {
		s.logger.WarnContext(ctx, "order lookup for capture notes failed", "payment_id", p.ID, "order_id", p.OrderID, "err", err)
		return notes
	}
	if notes.CampaignID == "" {
		notes.CampaignID = order.Notes.CampaignID
	}
	if notes.PayerID == "" {
		notes.PayerID = order.Notes.PayerID
	}
	return notes
}

// isParked reports settlement errors that were recorded as anomalies.
func isParked(err error) bool {
	if err == nil || errors.Is(err, ErrStorageConflict) {
		return false
	}
	return errors.Is(err, ErrCampaignNotFound) || errors.Is(err, ErrMissingMetadata) || errors.Is(err, ErrInvalidAmount)
}

func (s *WebhookService) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("provider = ? AND event_id = ? AND processed_at IS NOT NULL", s.provider, eventID).
		Count(&n).Error
	return n > 0, err
}

func (s *WebhookService) logEvent(ctx context.Context, ev WebhookEvent, rawBody []byte, applyErr error) error {
	now := time.Now()
	pe := ProviderEvent{
		ID:         uuid.NewString(),
		Provider:   s.provider,
		EventID:    ev.ID,
		EventType:  ev.Type,
		ReceivedAt: now,
	}
	if json.Valid(rawBody) {
		pe.PayloadJSON = datatypes.JSON(rawBody)
	} else {
		pe.PayloadJSON = datatypes.JSON("{}")
	}
	if applyErr != nil {
		pe.ProcessError = ptr(truncate(applyErr.Error(), 250))
	} else {
		pe.ProcessedAt = &now
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"processed_at", "process_error"}),
	}).Create(&pe).Error
}
