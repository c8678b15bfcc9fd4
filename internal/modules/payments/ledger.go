package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
)

// Ledger is the read side over donations and refunds.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger { return &Ledger{db: db} }

type CampaignStats struct {
	CampaignID    string `json:"fundraiserId"`
	DonationCount int64  `json:"donationCount"`
	TotalDonated  int64  `json:"totalDonated"`
	AverageAmount int64  `json:"averageAmount"`
	LargestAmount int64  `json:"largestAmount"`
	TotalRefunded int64  `json:"totalRefunded"`
	RaisedAmount  int64  `json:"raisedAmount"`
	GoalAmount    int64  `json:"goalAmount"`
	Currency      string `json:"currency"`
	PercentOfGoal int64  `json:"percentOfGoal"`
}

type statsRow struct {
	Count   int64
	Total   int64
	Largest int64
	Refund  int64
}

func (l *Ledger) Stats(ctx context.Context, campaignID string) (CampaignStats, error) {
	c, err := l.campaign(ctx, campaignID)
	if err != nil {
		return CampaignStats{}, err
	}

	var agg statsRow
	if err := l.db.WithContext(ctx).Model(&Donation{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total, COALESCE(MAX(amount), 0) AS largest, COALESCE(SUM(refunded_amount), 0) AS refund").
		Where("campaign_id = ?", campaignID).
		Scan(&agg).Error; err != nil {
		return CampaignStats{}, err
	}

	st := CampaignStats{
		CampaignID:    c.ID,
		DonationCount: agg.Count,
		TotalDonated:  agg.Total,
		LargestAmount: agg.Largest,
		TotalRefunded: agg.Refund,
		RaisedAmount:  c.RaisedAmount,
		GoalAmount:    c.GoalAmount,
		Currency:      c.Currency,
	}
	if agg.Count > 0 {
		st.AverageAmount = agg.Total / agg.Count
	}
	if c.GoalAmount > 0 {
		st.PercentOfGoal = c.RaisedAmount * 100 / c.GoalAmount
	}
	return st, nil
}

type DonorTotal struct {
	PayerID       string `json:"userId"`
	TotalAmount   int64  `json:"totalAmount"`
	DonationCount int64  `json:"donationCount"`
}

// TopDonors ranks payers of a campaign by net donated amount.
func (l *Ledger) TopDonors(ctx context.Context, campaignID string, limit int) ([]DonorTotal, error) {
	if _, err := l.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var out []DonorTotal
	err := l.db.WithContext(ctx).Model(&Donation{}).
		Select("payer_id, SUM(amount - refunded_amount) AS total_amount, COUNT(*) AS donation_count").
		Where("campaign_id = ?", campaignID).
		Group("payer_id").
		Order("total_amount DESC, payer_id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// Reconciliation compares the campaign counter with the donation rows
// behind it. Drift is raised minus expected.
type Reconciliation struct {
	CampaignID string `json:"fundraiserId"`
	Raised     int64  `json:"raised"`
	Donated    int64  `json:"donated"`
	Refunded   int64  `json:"refunded"`
	Expected   int64  `json:"expected"`
	Drift      int64  `json:"drift"`
	OK         bool   `json:"ok"`
}

func (l *Ledger) Reconcile(ctx context.Context, campaignID string) (Reconciliation, error) {
	c, err := l.campaign(ctx, campaignID)
	if err != nil {
		return Reconciliation{}, err
	}
	sums, err := l.sums(ctx, campaignID)
	if err != nil {
		return Reconciliation{}, err
	}
	return reconcileRow(c.ID, c.RaisedAmount, sums[c.ID]), nil
}

// ReconcileAll returns every campaign whose counter has drifted.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	var cs []campaigns.Campaign
	if err := l.db.WithContext(ctx).Select("id", "raised_amount").Order("id").Find(&cs).Error; err != nil {
		return nil, err
	}
	sums, err := l.sums(ctx, "")
	if err != nil {
		return nil, err
	}

	var drifted []Reconciliation
	for _, c := range cs {
		if r := reconcileRow(c.ID, c.RaisedAmount, sums[c.ID]); !r.OK {
			drifted = append(drifted, r)
		}
	}
	return drifted, nil
}

type ledgerSums struct {
	CampaignID string
	Donated    int64
	Refunded   int64
}

func (l *Ledger) sums(ctx context.Context, campaignID string) (map[string]ledgerSums, error) {
	q := l.db.WithContext(ctx).Model(&Donation{}).
		Select("campaign_id, COALESCE(SUM(amount), 0) AS donated, COALESCE(SUM(refunded_amount), 0) AS refunded").
		Group("campaign_id")
	if campaignID != "" {
		q = q.Where("campaign_id = ?", campaignID)
	}
	var rows []ledgerSums
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]ledgerSums, len(rows))
	for _, r := range rows {
		out[r.CampaignID] = r
	}
	return out, nil
}

func reconcileRow(id string, raised int64, s ledgerSums) Reconciliation {
	expected := s.Donated - s.Refunded
	return Reconciliation{
		CampaignID: id,
		Raised:     raised,
		Donated:    s.Donated,
		Refunded:   s.Refunded,
		Expected:   expected,
		Drift:      raised - expected,
		OK:         raised == expected,
	}
}

func (l *Ledger) campaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	var c campaigns.Campaign
	if err := l.db.WithContext(ctx).Take(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return campaigns.Campaign{}, campaigns.ErrNotFound
		}
		return campaigns.Campaign{}, err
	}
	return c, nil
}
