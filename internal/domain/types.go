package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order exists but payment has not completed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded and fulfillment may begin.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reports delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is a terminal state reached on payment failure or manual cancellation.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned is a terminal state reached when the full amount has been refunded.
	OrderStatusReturned OrderStatus = "returned"
)

// IsTerminal reports whether the order status permits no further lifecycle
// transition, including PSP-driven ones.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// PaymentStatus enumerates valid payment sub-states for an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no payment attempt has started.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing indicates a PSP session or bank transfer is in flight.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusCompleted indicates funds were captured.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates the PSP reported a definitive failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the full amount has been refunded.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsTerminal reports whether the payment status permits no further PSP-driven transition.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodHosted redirects the customer to the PSP-hosted payment page.
	PaymentMethodHosted PaymentMethod = "hosted"
	// PaymentMethodCard uses a Stripe checkout session.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodBankTransfer awaits a manually reconciled wire transfer.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// CustomerType distinguishes individual from business buyers for billing rules.
type CustomerType string

const (
	// CustomerTypeIndividual is the default buyer type.
	CustomerTypeIndividual CustomerType = "individual"
	// CustomerTypeBusiness requires company name and tax number on the billing address.
	CustomerTypeBusiness CustomerType = "business"
)

// Order is the central aggregate: an immutable snapshot of priced items,
// addresses, and discount source, plus the mutable lifecycle state.
type Order struct {
	ID           string
	OrderNumber  string
	UserID       string
	CustomerType CustomerType
	Status       OrderStatus
	Currency     string
	Items        []OrderItem
	Subtotal     int64
	Discount     int64
	Shipping     int64
	Total        int64
	Payment      PaymentInfo
	DiscountSrc  *DiscountSnapshot
	ShippingAddr Address
	BillingAddr  Address
	Consents     map[string]bool
	AdminNotes   []AdminNote
	Tracking     *Tracking
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ConfirmedAt  *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

// OrderItem snapshots a single priced line at order time. Later catalog
// changes never alter a placed order.
type OrderItem struct {
	ProductRef    string
	Name          string
	SKU           string
	ProductType   string
	UnitPrice     int64
	OriginalPrice int64
	Quantity      int
	Total         int64
	BundleItems   []BundleItem
}

// BundleItem records the sub-components of a bundled product line.
type BundleItem struct {
	ProductRef string
	Name       string
	SKU        string
	Quantity   int
}

// PaymentInfo tracks the payment sub-state and PSP references for an order.
type PaymentInfo struct {
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	PaymentDate   *time.Time
	RefundAmount  int64
	RefundDate    *time.Time
	Discrepancy   *PaymentDiscrepancy
	Details       map[string]any
}

// PaymentDiscrepancy records a remitted amount that did not match the
// expected total, surfaced for manual review instead of silently accepted.
type PaymentDiscrepancy struct {
	ExpectedAmount int64
	ActualAmount   int64
	RecordedAt     time.Time
	Note           string
}

// DiscountSourceType distinguishes coupon-code from campaign discounts.
type DiscountSourceType string

const (
	// DiscountSourceCoupon marks a user-supplied coupon code.
	DiscountSourceCoupon DiscountSourceType = "coupon"
	// DiscountSourceCampaign marks an explicit or auto-applied campaign.
	DiscountSourceCampaign DiscountSourceType = "campaign"
)

// DiscountType enumerates how a discount value is interpreted.
type DiscountType string

const (
	// DiscountTypePercentage applies value as a percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed applies value as a fixed amount.
	DiscountTypeFixed DiscountType = "fixed"
)

// DiscountSnapshot is the immutable copy of the discount source applied to an
// order. SourceRef is a lookup-only back-reference, never an ownership
/// relationship: editing or deleting the coupon later must not change the order.
type DiscountSnapshot struct {
	SourceType DiscountSourceType
	SourceRef  string
	Code       string
	Name       string
	Type       DiscountType
	Value      int64
	Amount     int64
}

// AdminNote is one entry of the append-only audit trail of manual interventions.
type AdminNote struct {
	Actor     string
	Note      string
	Field     string
	Before    string
	After     string
	CreatedAt time.Time
}

// Tracking stores carrier metadata populated after fulfillment.
type Tracking struct {
	Carrier        string
	TrackingNumber string
	ShippedAt      *time.Time
}

// Address is a postal snapshot embedded in orders; business buyers carry
// company and tax fields.
type Address struct {
	Recipient   string
	Line1       string
	Line2       string
	City        string
	PostalCode  string
	Country     string
	Phone       string
	CompanyName string
	TaxNumber   string
}

// Coupon is a read-mostly reference entity resolved by code.
type Coupon struct {
	ID             string
	Code           string
	Name           string
	Type           DiscountType
	Value          int64
	MinOrderAmount int64
	MaxDiscount    int64
	StartsAt       time.Time
	EndsAt         time.Time
	UsageLimit     int
	PerUserLimit   int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Campaign is a promotional discount, optionally auto-applied without a code.
type Campaign struct {
	ID             string
	Name           string
	Type           DiscountType
	Value          int64
	MinOrderAmount int64
	MaxDiscount    int64
	StartsAt       time.Time
	EndsAt         time.Time
	UsageLimit     int
	PerUserLimit   int
	Priority       int
	AutoApply      bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DiscountUsage is one ledger entry, appended only on confirmed payment so
// abandoned orders never consume limited-use discounts.
type DiscountUsage struct {
	ID         string
	SourceType DiscountSourceType
	SourceRef  string
	UserID     string
	OrderRef   string
	Amount     int64
	UsedAt     time.Time
}

// Product is the stock projection of a catalog product; only the fields this
// core reads and mutates.
type Product struct {
	ID          string
	Name        string
	SKU         string
	ProductType string
	Price       int64
	ListPrice   int64
	Stock       Stock
	Bundle      []BundleItem
	UpdatedAt   time.Time
}

// Stock carries the quantity counters mutated by the decrement side effect.
type Stock struct {
	Quantity   int
	TrackStock bool
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
