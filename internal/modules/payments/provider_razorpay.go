package payments

import (
	"context"
	"encoding/json"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

type RazorpayProvider struct {
	client *razorpay.Client
	keyID  string
}

func NewRazorpayProvider(keyID, keySecret string) *RazorpayProvider {
	return &RazorpayProvider{client: razorpay.NewClient(keyID, keySecret), keyID: keyID}
}

func (p *RazorpayProvider) Name() string      { return "razorpay" }
func (p *RazorpayProvider) PublicKey() string { return p.keyID }

func (p *RazorpayProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes": map[string]interface{}{
			"userId":       req.Notes.PayerID,
			"fundraiserId": req.Notes.CampaignID,
		},
	}
	body, err := withContext(ctx, func() (map[string]interface{}, error) {
		return p.client.Order.Create(data, nil)
	})
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	return decodeOrder(body)
}

func (p *RazorpayProvider) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	body, err := withContext(ctx, func() (map[string]interface{}, error) {
		return p.client.Order.Fetch(orderID, nil, nil)
	})
	if err != nil {
		return Order{}, fmt.Errorf("razorpay fetch order %s: %w", orderID, err)
	}
	return decodeOrder(body)
}

// withContext bounds a blocking SDK call by ctx. The SDK takes no context,
// so on timeout the call finishes in the background and its result is
// dropped; nothing has been committed locally at that point.
func withContext(ctx context.Context, call func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := call()
		ch <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.body, r.err
	}
}

func decodeOrder(body map[string]interface{}) (Order, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Order{}, err
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	if o.ID == "" {
		return Order{}, fmt.Errorf("decode order: missing id")
	}
	return o, nil
}
