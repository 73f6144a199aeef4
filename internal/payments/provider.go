package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been fully refunded.
	StatusRefunded Status = "refunded"
)

var (
	// ErrUnsupportedMethod is returned when the manager has no provider for a payment method.
	ErrUnsupportedMethod = errors.New("payments: unsupported payment method")
	// ErrRefundNotSupported signals the provider cannot execute refunds programmatically;
	// callers record bookkeeping only and settle the refund out of band.
	ErrRefundNotSupported = errors.New("payments: refund not supported by provider")
	// ErrLookupNotSupported signals the provider offers no payment lookup API.
	ErrLookupNotSupported = errors.New("payments: lookup not supported by provider")
)

// SessionLineItem describes a single order line forwarded to the PSP session.
type SessionLineItem struct {
	Name     string
	SKU      string
	Quantity int64
	Amount   int64
	Currency string
}

// SessionRequest captures the payload required to start a payment session.
type SessionRequest struct {
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	CustomerEmail  string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []SessionLineItem
}

// Session represents the PSP session the customer is redirected to.
type Session struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
	Raw         map[string]any
}

// RefundRequest defines a PSP refund attempt.
type RefundRequest struct {
	TransactionID  string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// LookupRequest fetches provider specific payment details for reconciliation.
type LookupRequest struct {
	TransactionID string
}

// PaymentDetails normalises PSP specific fields for storage.
type PaymentDetails struct {
	Provider      string
	TransactionID string
	Status        Status
	Amount        int64
	Currency      string
	CapturedAt    *time.Time
	RefundedAt    *time.Time
	Raw           map[string]any
}

// Provider defines the contract PSP adapters implement.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	Lookup(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager routes payment operations to the provider registered for a payment
// method. Bank transfers have no provider; callers handle them directly.
type Manager struct {
	providers map[string]Provider
	fallback  string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithFallbackProvider selects the provider used for methods without an explicit registration.
func WithFallbackProvider(method string) ManagerOption {
	return func(m *Manager) {
		m.fallback = strings.ToLower(strings.TrimSpace(method))
	}
}

// NewManager constructs a Manager over the supplied method-to-provider table.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	table := make(map[string]Provider, len(providers))
	for method, provider := range providers {
		key := strings.ToLower(strings.TrimSpace(method))
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for method %q", method)
		}
		table[key] = provider
	}
	m := &Manager{providers: table}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ForMethod resolves the provider registered for the given payment method.
func (m *Manager) ForMethod(method string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	key := strings.ToLower(strings.TrimSpace(method))
	if provider, ok := m.providers[key]; ok {
		return provider, nil
	}
	if m.fallback != "" {
		if provider, ok := m.providers[m.fallback]; ok {
			return provider, nil
		}
	}
	return nil, ErrUnsupportedMethod
}

// CreateSession delegates to the provider registered for the method.
func (m *Manager) CreateSession(ctx context.Context, method string, req SessionRequest) (Session, error) {
	provider, err := m.ForMethod(method)
	if err != nil {
		return Session{}, err
	}
	return provider.CreateSession(ctx, req)
}

// Refund delegates to the provider registered for the method.
func (m *Manager) Refund(ctx context.Context, method string, req RefundRequest) (PaymentDetails, error) {
	provider, err := m.ForMethod(method)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Refund(ctx, req)
}

// Lookup delegates to the provider registered for the method.
func (m *Manager) Lookup(ctx context.Context, method string, req LookupRequest) (PaymentDetails, error) {
	provider, err := m.ForMethod(method)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Lookup(ctx, req)
}
