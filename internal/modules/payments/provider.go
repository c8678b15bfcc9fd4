package payments

import (
	"bytes"
	"context"
	"encoding/json"
)

// Notes is the metadata embedded in a processor order and echoed on its
// payments, so confirmations are self-describing. Key names are the wire
// names the checkout client already uses.
type Notes struct {
	PayerID    string `json:"userId,omitempty"`
	CampaignID string `json:"fundraiserId,omitempty"`
}

// UnmarshalJSON accepts the empty array the processor sends for orders
// created without notes.
func (n *Notes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || b[0] == '[' {
		*n = Notes{}
		return nil
	}
	type plain Notes
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*n = Notes(p)
	return nil
}

func (n Notes) Complete() bool { return n.PayerID != "" && n.CampaignID != "" }

type CreateOrderRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Notes    Notes
}

// Order is the processor-side payment intent.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes"`
}

type Provider interface {
	Name() string
	// PublicKey is handed to the browser checkout widget.
	PublicKey() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	FetchOrder(ctx context.Context, orderID string) (Order, error)
}
