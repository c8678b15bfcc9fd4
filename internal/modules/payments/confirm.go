package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type ConfirmOptions struct {
	ProcessorTimeout time.Duration
	SettleTimeout    time.Duration
}

// ConfirmationService handles the payer's own callback after checkout. It
// races the webhook path; both converge on the settlement engine.
type ConfirmationService struct {
	verifier Verifier
	provider Provider
	engine   *SettlementEngine
	opts     ConfirmOptions
	logger   *slog.Logger
}

func NewConfirmationService(v Verifier, p Provider, e *SettlementEngine, opts ConfirmOptions) *ConfirmationService {
	if opts.ProcessorTimeout <= 0 {
		opts.ProcessorTimeout = 10 * time.Second
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 15 * time.Second
	}
	return &ConfirmationService{verifier: v, provider: p, engine: e, opts: opts, logger: slog.Default()}
}

func (s *ConfirmationService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

type VerifyPaymentInput struct {
	OrderID   string
	PaymentID string
	Signature string
	// ClientAmount is informational only; the processor's order amount
	// is what gets settled.
	ClientAmount *int64
	// SessionPayerID is the authenticated caller, compared against the
	// payer recorded on the order.
	SessionPayerID string
}

type VerifyPaymentResult struct {
	Amount   int64
	Currency string
	Donation Donation
	Created  bool
}

func (s *ConfirmationService) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (VerifyPaymentResult, error) {
	if err := s.verifier.VerifyConfirmation(in.OrderID, in.PaymentID, in.Signature); err != nil {
		s.logger.WarnContext(ctx, "signature_rejected",
			"path", SourceClient,
			"order_id", in.OrderID,
			"payment_id", in.PaymentID,
			"payer_id", in.SessionPayerID,
		)
		return VerifyPaymentResult{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProcessorTimeout)
	order, err := s.provider.FetchOrder(pctx, in.OrderID)
	cancel()
	if err != nil {
		s.logger.ErrorContext(ctx, "processor order fetch failed", "order_id", in.OrderID, "err", err)
		return VerifyPaymentResult{}, fmt.Errorf("%w: %w", ErrProcessor, err)
	}

	if in.ClientAmount != nil && *in.ClientAmount != order.Amount {
		s.logger.WarnContext(ctx, "client amount differs from processor order",
			"order_id", in.OrderID, "client_amount", *in.ClientAmount, "order_amount", order.Amount)
	}
	if in.SessionPayerID != "" && order.Notes.PayerID != "" && in.SessionPayerID != order.Notes.PayerID {
		s.logger.WarnContext(ctx, "confirming user differs from order payer",
			"order_id", in.OrderID, "session_payer_id", in.SessionPayerID, "order_payer_id", order.Notes.PayerID)
	}

	// The payer may drop the connection once checkout closes; the capture
	// has happened either way, so settlement is not tied to the request.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SettleTimeout)
	defer scancel()

	res, err := s.engine.Settle(sctx, SettleInput{
		PaymentID:  in.PaymentID,
		OrderID:    order.ID,
		CampaignID: order.Notes.CampaignID,
		PayerID:    order.Notes.PayerID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Signature:  in.Signature,
		Source:     SourceClient,
	})
	if err != nil {
		return VerifyPaymentResult{}, err
	}

	return VerifyPaymentResult{
		Amount:   res.Donation.Amount,
		Currency: res.Donation.Currency,
		Donation: res.Donation,
		Created:  res.Created,
	}, nil
}
