package payments

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
	"github.com/arsenic-art/DreamFundr/internal/testutil"
)

const (
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

type fixture struct {
	db        *gorm.DB
	anomalies *AnomalyQueue
	engine    *SettlementEngine
	refunds   *RefundService
	ledger    *Ledger
	verifier  Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, &campaigns.Campaign{}, &Donation{}, &Refund{}, &ProviderEvent{}, &SettlementAnomaly{})
	log := testutil.DiscardLogger()

	q := NewAnomalyQueue(db, nil)
	q.SetLogger(log)
	e := NewSettlementEngine(db, q)
	e.SetLogger(log)
	r := NewRefundService(db, q)
	r.SetLogger(log)

	return &fixture{
		db:        db,
		anomalies: q,
		engine:    e,
		refunds:   r,
		ledger:    NewLedger(db),
		verifier:  NewVerifier(testKeySecret, testWebhookSecret),
	}
}

func (f *fixture) campaign(t *testing.T, id string) {
	t.Helper()
	_, err := campaigns.NewRepo(f.db).Create(context.Background(), campaigns.CreateInput{
		ID: id, OwnerID: "owner-" + id, Title: "Campaign " + id, GoalAmount: 1_000_000, Currency: "INR",
	})
	if err != nil {
		t.Fatalf("seed campaign %s: %v", id, err)
	}
}

func (f *fixture) raised(t *testing.T, campaignID string) int64 {
	t.Helper()
	var c campaigns.Campaign
	if err := f.db.Take(&c, "id = ?", campaignID).Error; err != nil {
		t.Fatalf("load campaign %s: %v", campaignID, err)
	}
	return c.RaisedAmount
}

func (f *fixture) donations(t *testing.T, paymentID string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&Donation{}).Where("provider_payment_id = ?", paymentID).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func (f *fixture) openAnomalies(t *testing.T) []SettlementAnomaly {
	t.Helper()
	out, err := f.anomalies.ListOpen(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func settleInput(paymentID, campaignID string, amount int64) SettleInput {
	return SettleInput{
		PaymentID:  paymentID,
		OrderID:    "order_" + paymentID,
		CampaignID: campaignID,
		PayerID:    "user1",
		Amount:     amount,
		Currency:   "INR",
		Signature:  "sig",
		Source:     SourceClient,
	}
}
