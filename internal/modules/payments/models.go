package payments

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SourceClient  = "client"
	SourceWebhook = "webhook"
	// SourceManual marks donations settled by an operator from the anomaly
	// queue; their order id may be empty.
	SourceManual = "manual"

	// WebhookSignature marks donations first settled by a webhook delivery;
	// the webhook path has no per-payment client signature to keep.
	WebhookSignature = "webhook"
)

// Donation is the settled record of one captured payment. At most one row
// exists per ProviderPaymentID; the unique index enforces it.
type Donation struct {
	ID                string `gorm:"type:char(36);primaryKey"`
	CampaignID        string `gorm:"type:varchar(64);not null;index:ix_donations_campaign_id"`
	PayerID           string `gorm:"type:varchar(64);not null;index:ix_donations_payer_id"`
	Amount            int64  `gorm:"not null"`
	Currency          string `gorm:"type:char(3);not null"`
	ProviderOrderID   string `gorm:"type:varchar(64);not null;index:ix_donations_provider_order_id"`
	ProviderPaymentID string `gorm:"type:varchar(64);not null;uniqueIndex:ux_donations_provider_payment_id"`
	Signature         string `gorm:"type:varchar(255);not null"`
	Source            string `gorm:"type:varchar(16);not null"`
	RefundedAmount    int64  `gorm:"not null"`
	CreatedAt         time.Time
}

func (Donation) TableName() string { return "donations" }

// Refund is keyed by the processor's refund id so a redelivered
// refund.created cannot decrement the campaign twice.
type Refund struct {
	ID                string `gorm:"type:char(36);primaryKey"`
	ProviderRefundID  string `gorm:"type:varchar(64);not null;uniqueIndex:ux_refunds_provider_refund_id"`
	ProviderPaymentID string `gorm:"type:varchar(64);not null;index:ix_refunds_provider_payment_id"`
	DonationID        string `gorm:"type:char(36);not null;index:ix_refunds_donation_id"`
	CampaignID        string `gorm:"type:varchar(64);not null;index:ix_refunds_campaign_id"`
	Amount            int64  `gorm:"not null"`
	Currency          string `gorm:"type:char(3);not null"`
	CreatedAt         time.Time
}

func (Refund) TableName() string { return "refunds" }

// ProviderEvent is the webhook delivery log.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

const (
	AnomalyOpen     = "open"
	AnomalyResolved = "resolved"

	ReasonCampaignNotFound = "campaign_not_found"
	ReasonMissingMetadata  = "missing_metadata"
	ReasonInvalidAmount    = "invalid_amount"
	// ReasonRefundUnmatched is a refund delivered for a payment with no
	// Donation. It is informational and never reattributed.
	ReasonRefundUnmatched = "refund_unmatched"
)

// settlementReasons are the anomalies a later settlement of the same
// payment makes obsolete.
var settlementReasons = []string{ReasonCampaignNotFound, ReasonMissingMetadata, ReasonInvalidAmount}

// SettlementAnomaly is the dead-letter queue for payments the processor
// captured but the ledger could not attribute.
type SettlementAnomaly struct {
	ID                string         `gorm:"type:char(36);primaryKey"`
	Source            string         `gorm:"type:varchar(16);not null"`
	Reason            string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_settlement_anomalies_payment_reason,priority:2"`
	ProviderPaymentID string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_settlement_anomalies_payment_reason,priority:1"`
	ProviderOrderID   string         `gorm:"type:varchar(64);not null"`
	CampaignID        string         `gorm:"type:varchar(64);not null"`
	PayerID           string         `gorm:"type:varchar(64);not null"`
	Amount            int64          `gorm:"not null"`
	Currency          string         `gorm:"type:char(3);not null"`
	PayloadJSON       datatypes.JSON `gorm:"type:json"`
	ArchiveKey        *string        `gorm:"type:varchar(255)"`
	Status            string         `gorm:"type:varchar(16);not null;index:ix_settlement_anomalies_status"`
	ResolutionNote    *string        `gorm:"type:varchar(255)"`
	ResolvedAt        *time.Time
	CreatedAt         time.Time
}

func (SettlementAnomaly) TableName() string { return "settlement_anomalies" }
