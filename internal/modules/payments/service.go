package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
)

// CampaignLookup is the slice of the campaign repo the order issuer needs.
type CampaignLookup interface {
	Get(ctx context.Context, id string) (campaigns.Campaign, error)
}

type OrderOptions struct {
	Currency  string
	MaxAmount int64         // per-transaction ceiling, minor units
	Timeout   time.Duration // bound on the processor call
}

type OrderService struct {
	campaigns CampaignLookup
	provider  Provider
	opts      OrderOptions
	logger    *slog.Logger
}

func NewOrderService(c CampaignLookup, p Provider, opts OrderOptions) *OrderService {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &OrderService{campaigns: c, provider: p, opts: opts, logger: slog.Default()}
}

func (s *OrderService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

type CreateOrderInput struct {
	Amount     int64
	CampaignID string
	PayerID    string
}

type CreateOrderResult struct {
	OrderID  string `json:"orderId"`
	Key      string `json:"key"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrder opens a processor order tagged with the payer and campaign.
// Processor failures are not retried here; the caller sees ErrProcessor.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if in.Amount <= 0 || in.Amount > s.opts.MaxAmount {
		return CreateOrderResult{}, ErrInvalidAmount
	}

	c, err := s.campaigns.Get(ctx, in.CampaignID)
	if err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			return CreateOrderResult{}, ErrCampaignUnavailable
		}
		return CreateOrderResult{}, err
	}
	if !c.IsActive {
		return CreateOrderResult{}, ErrCampaignUnavailable
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	order, err := s.provider.CreateOrder(pctx, CreateOrderRequest{
		Amount:   in.Amount,
		Currency: s.opts.Currency,
		Receipt:  Receipt(in.CampaignID),
		Notes:    Notes{PayerID: in.PayerID, CampaignID: in.CampaignID},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "processor order creation failed",
			"provider", s.provider.Name(), "campaign_id", in.CampaignID, "amount", in.Amount, "err", err)
		return CreateOrderResult{}, fmt.Errorf("%w: %w", ErrProcessor, err)
	}

	s.logger.InfoContext(ctx, "payment order created",
		"order_id", order.ID, "campaign_id", in.CampaignID, "payer_id", in.PayerID, "amount", order.Amount)

	return CreateOrderResult{
		OrderID:  order.ID,
		Key:      s.provider.PublicKey(),
		Amount:   order.Amount,
		Currency: order.Currency,
	}, nil
}

// Receipt is the merchant reference attached to an order. The processor
// caps receipts at 40 characters.
func Receipt(campaignID string) string {
	return "fn_" + truncate(campaignID, 12)
}
