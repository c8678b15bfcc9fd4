package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
)

func TestLedgerStatsAndTopDonors(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	ctx := context.Background()

	for _, d := range []struct {
		pay   string
		payer string
		amt   int64
	}{
		{"pay_1", "alice", 1000},
		{"pay_2", "bob", 300},
		{"pay_3", "alice", 500},
		{"pay_4", "carol", 200},
	} {
		in := settleInput(d.pay, "camp1", d.amt)
		in.PayerID = d.payer
		if _, err := f.engine.Settle(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.refunds.Apply(ctx, RefundInput{RefundID: "rfnd_1", PaymentID: "pay_3", Amount: 500}); err != nil {
		t.Fatal(err)
	}

	st, err := f.ledger.Stats(ctx, "camp1")
	if err != nil {
		t.Fatal(err)
	}
	if st.DonationCount != 4 || st.TotalDonated != 2000 || st.AverageAmount != 500 || st.LargestAmount != 1000 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.TotalRefunded != 500 || st.RaisedAmount != 1500 {
		t.Errorf("unexpected refund figures %+v", st)
	}

	top, err := f.ledger.TopDonors(ctx, "camp1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 donors, got %d", len(top))
	}
	if top[0].PayerID != "alice" || top[0].TotalAmount != 1000 || top[0].DonationCount != 2 {
		t.Errorf("unexpected top donor %+v", top[0])
	}
	if top[1].PayerID != "bob" || top[1].TotalAmount != 300 {
		t.Errorf("unexpected second donor %+v", top[1])
	}
}

func TestLedgerUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.Stats(context.Background(), "nope"); !errors.Is(err, campaigns.ErrNotFound) {
		t.Errorf("expected campaigns.ErrNotFound, got %v", err)
	}
	if _, err := f.ledger.TopDonors(context.Background(), "nope", 5); !errors.Is(err, campaigns.ErrNotFound) {
		t.Errorf("expected campaigns.ErrNotFound, got %v", err)
	}
}

func TestLedgerReconcile(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "camp1")
	f.campaign(t, "camp2")
	ctx := context.Background()

	if _, err := f.engine.Settle(ctx, settleInput("pay_1", "camp1", 800)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.refunds.Apply(ctx, RefundInput{RefundID: "rfnd_1", PaymentID: "pay_1", Amount: 100}); err != nil {
		t.Fatal(err)
	}

	r, err := f.ledger.Reconcile(ctx, "camp1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.OK || r.Expected != 700 || r.Raised != 700 {
		t.Errorf("expected balanced ledger, got %+v", r)
	}

	// simulate an out-of-band write
	if err := f.db.Model(&campaigns.Campaign{}).Where("id = ?", "camp2").Update("raised_amount", 50).Error; err != nil {
		t.Fatal(err)
	}
	drifted, err := f.ledger.ReconcileAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 1 || drifted[0].CampaignID != "camp2" || drifted[0].Drift != 50 {
		t.Errorf("expected camp2 drift of 50, got %+v", drifted)
	}
}
