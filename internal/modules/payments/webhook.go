package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
)

type PaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// WebhookEvent is the decoded processor envelope:
// {event, payload: {payment: {entity}, refund: {entity}}}.
type WebhookEvent struct {
	ID      string
	Type    string
	Payment *PaymentEntity
	Refund  *RefundEntity
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// ParseWebhook decodes a verified body. eventID is the delivery id header;
// when absent the body digest stands in, so byte-identical redeliveries
// still dedupe.
func ParseWebhook(body []byte, eventID string) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	ev := WebhookEvent{ID: eventID, Type: env.Event}
	if ev.ID == "" {
		sum := sha256.Sum256(body)
		ev.ID = "sha256:" + hex.EncodeToString(sum[:])
	}
	if env.Payload.Payment != nil {
		p := env.Payload.Payment.Entity
		ev.Payment = &p
	}
	if env.Payload.Refund != nil {
		r := env.Payload.Refund.Entity
		ev.Refund = &r
	}

	switch ev.Type {
	case EventPaymentCaptured, EventPaymentFailed:
		if ev.Payment == nil || ev.Payment.ID == "" {
			return WebhookEvent{}, fmt.Errorf("%w: %s without payment entity", ErrMalformedEvent, ev.Type)
		}
	case EventRefundCreated:
		if ev.Refund == nil || ev.Refund.ID == "" || ev.Refund.PaymentID == "" {
			return WebhookEvent{}, fmt.Errorf("%w: %s without refund entity", ErrMalformedEvent, ev.Type)
		}
	}
	return ev, nil
}
