package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/arsenic-art/DreamFundr/internal/testutil"
)

func newConfirmation(t *testing.T, f *fixture, p Provider) *ConfirmationService {
	t.Helper()
	s := NewConfirmationService(f.verifier, p, f.engine, ConfirmOptions{})
	s.SetLogger(testutil.DiscardLogger())
	return s
}

func capturedOrder(p *MockProvider, orderID, campaignID string, amount int64) {
	p.Put(Order{
		ID:       orderID,
		Amount:   amount,
		Currency: "INR",
		Status:   "paid",
		Notes:    Notes{PayerID: "user1", CampaignID: campaignID},
	})
}

func TestVerifyPaymentHappyPath(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	p := NewMockProvider("k")
	ctx := context.Background()

	order, err := newOrderService(t, f, p).CreateOrder(ctx, CreateOrderInput{Amount: 500, CampaignID: "camp1", PayerID: "user1"})
	if err != nil {
		t.Fatal(err)
	}

	sig := Sign(ConfirmationPayload(order.OrderID, "pay_1"), testKeySecret)
	res, err := newConfirmation(t, f, p).VerifyPayment(ctx, VerifyPaymentInput{
		OrderID: order.OrderID, PaymentID: "pay_1", Signature: sig, SessionPayerID: "user1",
	})
	if err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}
	if res.Amount != 500 || !res.Created {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Donation.PayerID != "user1" || res.Donation.CampaignID != "camp1" || res.Donation.Source != SourceClient {
		t.Errorf("unexpected donation %+v", res.Donation)
	}
	if got := f.raised(t, "camp1"); got != 500 {
		t.Errorf("expected raised 500, got %d", got)
	}
	if n := f.donations(t, "pay_1"); n != 1 {
		t.Errorf("expected 1 donation, got %d", n)
	}
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	p := NewMockProvider("k")
	capturedOrder(p, "order_1", "camp1", 500)
	s := newConfirmation(t, f, p)

	cases := map[string]string{
		"wrong secret":     Sign(ConfirmationPayload("order_1", "pay_1"), "other-secret"),
		"tampered payload": Sign(ConfirmationPayload("order_1", "pay_2"), testKeySecret),
		"empty":            "",
		"not hex":          "zz",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.VerifyPayment(context.Background(), VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: sig})
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}

	if n := f.donations(t, "pay_1"); n != 0 {
		t.Errorf("expected no donation, got %d", n)
	}
	if got := f.raised(t, "camp1"); got != 0 {
		t.Errorf("expected raised 0, got %d", got)
	}
}

func TestVerifyPaymentUsesProcessorAmount(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	p := NewMockProvider("k")
	capturedOrder(p, "order_1", "camp1", 500)

	claimed := int64(50_000)
	sig := Sign(ConfirmationPayload("order_1", "pay_1"), testKeySecret)
	res, err := newConfirmation(t, f, p).VerifyPayment(context.Background(), VerifyPaymentInput{
		OrderID: "order_1", PaymentID: "pay_1", Signature: sig, ClientAmount: &claimed,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Amount != 500 {
		t.Errorf("expected processor amount 500, got %d", res.Amount)
	}
	if got := f.raised(t, "camp1"); got != 500 {
		t.Errorf("expected raised 500, got %d", got)
	}
}

func TestVerifyPaymentAfterWebhookSettled(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	p := NewMockProvider("k")
	capturedOrder(p, "order_1", "camp1", 500)
	ctx := context.Background()

	in := settleInput("pay_1", "camp1", 500)
	in.OrderID = "order_1"
	in.Source = SourceWebhook
	in.Signature = WebhookSignature
	first, err := f.engine.Settle(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	sig := Sign(ConfirmationPayload("order_1", "pay_1"), testKeySecret)
	res, err := newConfirmation(t, f, p).VerifyPayment(ctx, VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: sig})
	if err != nil {
		t.Fatalf("VerifyPayment failed: %v", err)
	}
	if res.Created || res.Donation.ID != first.Donation.ID {
		t.Errorf("expected the webhook's donation back, got %+v", res)
	}
	if got := f.raised(t, "camp1"); got != 500 {
		t.Errorf("expected raised 500, got %d", got)
	}
}

func TestVerifyPaymentProcessorFailure(t *testing.T) {
	f := newFixture(t)
	p := NewMockProvider("k")
	sig := Sign(ConfirmationPayload("order_missing", "pay_1"), testKeySecret)

	_, err := newConfirmation(t, f, p).VerifyPayment(context.Background(), VerifyPaymentInput{
		OrderID: "order_missing", PaymentID: "pay_1", Signature: sig,
	})
	if !errors.Is(err, ErrProcessor) {
		t.Fatalf("expected ErrProcessor, got %v", err)
	}
}

func TestVerifyPaymentMissingMetadata(t *testing.T) {
	f := newFixture(t)
	p := NewMockProvider("k")
	p.Put(Order{ID: "order_bare", Amount: 200, Currency: "INR"})
	sig := Sign(ConfirmationPayload("order_bare", "pay_1"), testKeySecret)

	_, err := newConfirmation(t, f, p).VerifyPayment(context.Background(), VerifyPaymentInput{
		OrderID: "order_bare", PaymentID: "pay_1", Signature: sig,
	})
	if !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata, got %v", err)
	}
	if open := f.openAnomalies(t); len(open) != 1 || open[0].Source != SourceClient {
		t.Errorf("expected one client anomaly, got %+v", open)
	}
}
