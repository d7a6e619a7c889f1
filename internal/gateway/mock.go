package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider is an in-process gateway for tests and development. It
// signs and verifies payloads with HMAC-SHA256 over a shared secret, the
// same construction real gateways use, so the signature paths get
// exercised for real.
type MockProvider struct {
	secret []byte

	mu     sync.Mutex
	orders map[string]*mockOrder

	// Overrides let tests script failures.
	CreatePaymentOrderFunc func(ctx context.Context, params CreatePaymentOrderParams) (*PaymentOrder, error)
	VerifyPaymentFunc      func(ctx context.Context, params VerifyPaymentParams) (*VerificationResult, error)
	RefundPaymentFunc      func(ctx context.Context, params RefundParams) (*RefundResult, error)

	// CallLog tracks method calls for test assertions.
	CallLog []string
}

type mockOrder struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Succeeded      bool
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock gateway with the given webhook secret.
func NewMockProvider(secret string) *MockProvider {
	return &MockProvider{
		secret: []byte(secret),
		orders: make(map[string]*mockOrder),
	}
}

func (m *MockProvider) CreatePaymentOrder(ctx context.Context, params CreatePaymentOrderParams) (*PaymentOrder, error) {
	m.log("CreatePaymentOrder(%d, %s)", params.AmountCents, params.Currency)
	if m.CreatePaymentOrderFunc != nil {
		return m.CreatePaymentOrderFunc(ctx, params)
	}

	id := "mock_order_" + uuid.NewString()
	m.mu.Lock()
	m.orders[id] = &mockOrder{
		AmountCents:    params.AmountCents,
		Currency:       params.Currency,
		IdempotencyKey: params.IdempotencyKey,
	}
	m.mu.Unlock()

	return &PaymentOrder{
		GatewayOrderID: id,
		ClientSecret:   id + "_secret_" + uuid.NewString(),
	}, nil
}

func (m *MockProvider) VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*VerificationResult, error) {
	m.log("VerifyPayment(%s)", params.TransactionID)
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, params)
	}

	if params.Signature != m.Sign([]byte(params.TransactionID)) {
		return nil, ErrSignatureInvalid
	}

	m.mu.Lock()
	order, ok := m.orders[params.GatewayOrderID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrPaymentNotFound
	}

	return &VerificationResult{
		Valid:            true,
		GatewayPaymentID: params.TransactionID,
		AmountCents:      order.AmountCents,
		State:            StateSucceeded,
	}, nil
}

func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error) {
	m.log("VerifyWebhookSignature(%d bytes)", len(payload))

	if !hmac.Equal([]byte(signature), []byte(m.Sign(payload))) {
		return nil, ErrSignatureInvalid
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}

func (m *MockProvider) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	m.log("RefundPayment(%s, %d)", params.GatewayPaymentID, params.AmountCents)
	if m.RefundPaymentFunc != nil {
		return m.RefundPaymentFunc(ctx, params)
	}

	return &RefundResult{
		GatewayRefundID: "mock_refund_" + uuid.NewString(),
		Succeeded:       true,
	}, nil
}

// Sign computes the hex HMAC-SHA256 of payload under the mock's secret.
// Tests use it to forge valid (and invalid) deliveries.
func (m *MockProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedWebhook marshals an event and returns the payload with a valid
// signature, ready to feed through the webhook path.
func (m *MockProvider) SignedWebhook(event WebhookEvent) (payload []byte, signature string) {
	payload, _ = json.Marshal(event)
	return payload, m.Sign(payload)
}

func (m *MockProvider) log(format string, args ...interface{}) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}
