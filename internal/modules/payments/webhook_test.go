package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/arsenic-art/DreamFundr/internal/testutil"
)

func newWebhookService(t *testing.T, f *fixture) *WebhookService {
	t.Helper()
	s := NewWebhookService(f.db, "razorpay", f.verifier, f.engine, f.refunds)
	s.SetLogger(testutil.DiscardLogger())
	return s
}

func capturedBody(paymentID, orderID, campaignID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"currency":"INR","status":"captured","notes":{"userId":"user1","fundraiserId":%q}}}}}`,
		paymentID, orderID, amount, campaignID))
}

func refundBody(refundID, paymentID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"refund.created","payload":{"refund":{"entity":{"id":%q,"payment_id":%q,"amount":%d,"currency":"INR"}},"payment":{"entity":{"id":%q}}}}`,
		refundID, paymentID, amount, paymentID))
}

func deliver(t *testing.T, s *WebhookService, body []byte, eventID string) error {
	t.Helper()
	return s.Handle(context.Background(), body, Sign(body, testWebhookSecret), eventID)
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook(capturedBody("pay_1", "order_1", "camp1", 500), "evt_1")
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID != "evt_1" || ev.Type != EventPaymentCaptured || ev.Payment == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Payment.Amount != 500 || ev.Payment.Notes.CampaignID != "camp1" || ev.Payment.Notes.PayerID != "user1" {
		t.Errorf("unexpected payment %+v", ev.Payment)
	}

	noID, err := ParseWebhook(capturedBody("pay_1", "order_1", "camp1", 500), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(noID.ID) != len("sha256:")+64 {
		t.Errorf("expected body digest id, got %q", noID.ID)
	}

	for name, body := range map[string]string{
		"not json":           `{`,
		"no event":           `{"payload":{}}`,
		"captured no entity": `{"event":"payment.captured","payload":{}}`,
		"refund no payment":  `{"event":"refund.created","payload":{"refund":{"entity":{"id":"rfnd_1"}}}}`,
	} {
		if _, err := ParseWebhook([]byte(body), "e"); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("%s: expected ErrMalformedEvent, got %v", name, err)
		}
	}
}

func TestParseWebhookEmptyNotesArray(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"o","amount":1,"notes":[]}}}}`)
	ev, err := ParseWebhook(body, "e")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Payment.Notes.Complete() {
		t.Errorf("expected empty notes, got %+v", ev.Payment.Notes)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	s := newWebhookService(t, f)
	body := capturedBody("pay_1", "order_1", "camp1", 500)

	err := s.Handle(context.Background(), body, Sign(body, "wrong"), "evt_1")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if n := f.donations(t, "pay_1"); n != 0 {
		t.Errorf("expected no donation, got %d", n)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	s := newWebhookService(t, f)
	body := capturedBody("pay_1", "order_1", "camp1", 500)

	for i := 0; i < 2; i++ {
		if err := deliver(t, s, body, "evt_1"); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	// same payment under a new delivery id still settles once
	if err := deliver(t, s, body, "evt_2"); err != nil {
		t.Fatal(err)
	}

	if n := f.donations(t, "pay_1"); n != 1 {
		t.Errorf("expected 1 donation, got %d", n)
	}
	if got := f.raised(t, "camp1"); got != 500 {
		t.Errorf("expected raised 500, got %d", got)
	}

	var events int64
	f.db.Model(&ProviderEvent{}).Where("processed_at IS NOT NULL").Count(&events)
	if events != 2 {
		t.Errorf("expected 2 logged events, got %d", events)
	}
}

func TestWebhookPaymentFailedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	s := newWebhookService(t, f)
	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_f","order_id":"order_f","amount":500,"notes":{"userId":"u","fundraiserId":"camp1"}}}}}`)

	if err := deliver(t, s, body, "evt_f"); err != nil {
		t.Fatal(err)
	}
	if n := f.donations(t, "pay_f"); n != 0 {
		t.Errorf("expected no donation, got %d", n)
	}
	if got := f.raised(t, "camp1"); got != 0 {
		t.Errorf("expected raised 0, got %d", got)
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	f := newFixture(t)
	s := newWebhookService(t, f)
	if err := deliver(t, s, []byte(`{"event":"order.paid","payload":{}}`), "evt_o"); err != nil {
		t.Fatalf("expected unknown event to be acknowledged, got %v", err)
	}
}

func TestWebhookMissingMetadataParked(t *testing.T) {
	f := newFixture(t)
	s := newWebhookService(t, f)
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_n","order_id":"order_n","amount":250,"currency":"INR","notes":[]}}}}`)

	if err := deliver(t, s, body, "evt_n"); err != nil {
		t.Fatalf("parked capture should be acknowledged, got %v", err)
	}
	open := f.openAnomalies(t)
	if len(open) != 1 || open[0].Reason != ReasonMissingMetadata || open[0].Source != SourceWebhook {
		t.Fatalf("expected one webhook missing_metadata anomaly, got %+v", open)
	}
	if len(open[0].PayloadJSON) == 0 {
		t.Error("expected raw payload kept on the anomaly")
	}
}

func TestWebhookApplyFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	s := newWebhookService(t, f)
	if err := f.db.Migrator().DropTable(&Donation{}); err != nil {
		t.Fatal(err)
	}

	err := deliver(t, s, capturedBody("pay_1", "order_1", "camp1", 500), "evt_1")
	if err == nil {
		t.Fatal("expected an error so the processor retries")
	}

	var pe ProviderEvent
	if err := f.db.Take(&pe, "event_id = ?", "evt_1").Error; err != nil {
		t.Fatalf("expected event logged: %v", err)
	}
	if pe.ProcessedAt != nil || pe.ProcessError == nil {
		t.Errorf("expected unprocessed event with error, got %+v", pe)
	}
}

func TestWebhookRefund(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	s := newWebhookService(t, f)

	if err := deliver(t, s, capturedBody("pay_1", "order_1", "camp1", 500), "evt_c"); err != nil {
		t.Fatal(err)
	}
	if err := deliver(t, s, refundBody("rfnd_1", "pay_1", 200), "evt_r1"); err != nil {
		t.Fatal(err)
	}
	if got := f.raised(t, "camp1"); got != 300 {
		t.Fatalf("expected raised 300 after refund, got %d", got)
	}

	// replay under a new delivery id: refund id dedupes
	if err := deliver(t, s, refundBody("rfnd_1", "pay_1", 200), "evt_r2"); err != nil {
		t.Fatal(err)
	}
	if got := f.raised(t, "camp1"); got != 300 {
		t.Errorf("expected duplicate refund to be a no-op, got raised %d", got)
	}

	// unknown payment
	if err := deliver(t, s, refundBody("rfnd_2", "pay_unknown", 100), "evt_r3"); err != nil {
		t.Fatal(err)
	}
	if got := f.raised(t, "camp1"); got != 300 {
		t.Errorf("expected unknown-payment refund to be a no-op, got raised %d", got)
	}
	open := f.openAnomalies(t)
	if len(open) != 1 || open[0].Reason != ReasonRefundUnmatched || len(open[0].PayloadJSON) == 0 {
		t.Errorf("expected unmatched refund parked with payload, got %+v", open)
	}
}

func emptyNotesCapturedBody(paymentID, orderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"currency":"INR","status":"captured","notes":[]}}}}`,
		paymentID, orderID, amount))
}

func TestWebhookAfterClientSettleIgnoresMissingNotes(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	s := newWebhookService(t, f)

	if _, err := f.engine.Settle(context.Background(), settleInput("pay_1", "camp1", 500)); err != nil {
		t.Fatal(err)
	}
	if err := deliver(t, s, emptyNotesCapturedBody("pay_1", "order_pay_1", 500), "evt_1"); err != nil {
		t.Fatalf("expected duplicate capture acknowledged, got %v", err)
	}

	if n := f.donations(t, "pay_1"); n != 1 {
		t.Errorf("expected 1 donation, got %d", n)
	}
	if got := f.raised(t, "camp1"); got != 500 {
		t.Errorf("expected raised 500, got %d", got)
	}
	if open := f.openAnomalies(t); len(open) != 0 {
		t.Errorf("expected no anomalies, got %+v", open)
	}
}

func TestWebhookFillsNotesFromOrder(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	s := newWebhookService(t, f)

	mock := NewMockProvider("rzp_test")
	mock.Put(Order{ID: "order_1", Amount: 700, Currency: "INR", Notes: Notes{PayerID: "user1", CampaignID: "camp1"}})
	s.SetOrderLookup(mock)

	if err := deliver(t, s, emptyNotesCapturedBody("pay_1", "order_1", 700), "evt_1"); err != nil {
		t.Fatal(err)
	}
	if got := f.raised(t, "camp1"); got != 700 {
		t.Errorf("expected raised 700, got %d", got)
	}
	if open := f.openAnomalies(t); len(open) != 0 {
		t.Errorf("expected capture settled from order notes, got anomalies %+v", open)
	}
}
