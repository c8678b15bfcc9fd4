package payments

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arsenic-art/DreamFundr/internal/storage"
	"github.com/arsenic-art/DreamFundr/internal/testutil"
)

func TestAnomalyArchiveAndResolve(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	q := NewAnomalyQueue(f.db, storage.NewLocal(dir))
	q.SetLogger(testutil.DiscardLogger())
	ctx := context.Background()

	payload := []byte(`{"event":"payment.captured"}`)
	err := q.Record(ctx, Anomaly{
		Reason: ReasonCampaignNotFound, Source: SourceWebhook, PaymentID: "pay_1", OrderID: "order_1",
		CampaignID: "gone", PayerID: "u", Amount: 100, Currency: "INR", RawPayload: payload,
	})
	if err != nil {
		t.Fatal(err)
	}

	open, err := q.ListOpen(ctx, 10)
	if err != nil || len(open) != 1 {
		t.Fatalf("expected one open anomaly, got %d (%v)", len(open), err)
	}
	a := open[0]
	if a.ArchiveKey == nil {
		t.Fatal("expected archive key")
	}
	archived := filepath.Join(dir, filepath.FromSlash(*a.ArchiveKey))
	got, err := os.ReadFile(archived)
	if err != nil || string(got) != string(payload) {
		t.Fatalf("archived payload mismatch: %q %v", got, err)
	}

	if err := q.Resolve(ctx, a.ID, "refunded to payer"); err != nil {
		t.Fatal(err)
	}
	if err := q.Resolve(ctx, a.ID, "again"); !errors.Is(err, ErrAnomalyResolved) {
		t.Errorf("expected ErrAnomalyResolved, got %v", err)
	}
	if err := q.Resolve(ctx, "missing", ""); !errors.Is(err, ErrAnomalyNotFound) {
		t.Errorf("expected ErrAnomalyNotFound, got %v", err)
	}

	if err := q.PurgeArchive(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(archived); !os.IsNotExist(err) {
		t.Errorf("expected archived payload removed, stat err %v", err)
	}
	resolved, err := q.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != AnomalyResolved || resolved.ArchiveKey != nil || resolved.ResolutionNote == nil {
		t.Errorf("unexpected resolved anomaly %+v", resolved)
	}
}
