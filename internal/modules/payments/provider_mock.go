package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// MockProvider keeps orders in memory. It backs local development
// (payments.provider=mock) and tests.
type MockProvider struct {
	mu     sync.Mutex
	orders map[string]Order
	key    string
	err    error // returned by every call when set
}

func NewMockProvider(publicKey string) *MockProvider {
	return &MockProvider{orders: map[string]Order{}, key: publicKey}
}

func (m *MockProvider) Name() string      { return "mock" }
func (m *MockProvider) PublicKey() string { return m.key }

func (m *MockProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Order{}, m.err
	}

	o := Order{
		ID:       "order_" + randomHex(7),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *MockProvider) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Order{}, m.err
	}

	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("mock: order %s not found", orderID)
	}
	return o, nil
}

// Put stores an order as-is, for seeding tests.
func (m *MockProvider) Put(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockProvider) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
