package services

import (
	"context"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentMethod      = domain.PaymentMethod
	PaymentInfo        = domain.PaymentInfo
	PaymentDiscrepancy = domain.PaymentDiscrepancy
	CustomerType       = domain.CustomerType
	DiscountSnapshot   = domain.DiscountSnapshot
	DiscountUsage      = domain.DiscountUsage
	Address            = domain.Address
	AdminNote          = domain.AdminNote
	Tracking           = domain.Tracking
	Coupon             = domain.Coupon
	Campaign           = domain.Campaign
	Product            = domain.Product
	SystemHealthReport = domain.SystemHealthReport
)

// PricingService reprices cart lines from the catalog, validates stock and
// billing data, resolves the discount source, and computes order totals.
type PricingService interface {
	PriceCart(ctx context.Context, cmd PriceCartCommand) (PricedCart, error)
}

// DiscountService resolves coupon codes and campaigns against an order amount.
type DiscountService interface {
	Resolve(ctx context.Context, cmd ResolveDiscountCommand) (*DiscountSnapshot, error)
}

// OrderService encapsulates order creation, reads, cancellation, and
// admin-driven fulfillment and refund flows.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, query OrderQuery) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error)
	ApproveBankTransfer(ctx context.Context, cmd ApproveBankTransferCommand) (Order, error)
	RejectBankTransfer(ctx context.Context, cmd RejectBankTransferCommand) (Order, error)
	ProcessRefund(ctx context.Context, cmd RefundCommand) (Order, error)
}

// PaymentService opens PSP sessions or issues bank-transfer instructions for
// committed orders and exposes payment status reads.
type PaymentService interface {
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInstructions, error)
	GetPaymentStatus(ctx context.Context, query OrderQuery) (PaymentStatusView, error)
}

// ReconcilerService verifies and applies asynchronous PSP callbacks.
type ReconcilerService interface {
	ProcessCallback(ctx context.Context, cmd PaymentCallbackCommand) (CallbackResult, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers
// (confirmation notifications, invoice drafts). Fire-and-forget.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	PaymentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// Command and DTO definitions ------------------------------------------------

// CartLine is a client-submitted order line. Prices are never read from it.
type CartLine struct {
	ProductID string
	Quantity  int
}

type PriceCartCommand struct {
	UserID       string
	CustomerType CustomerType
	Items        []CartLine
	CouponCode   string
	CampaignID   string
	BillingAddr  Address
}

// PricedCart is the server-trusted pricing output used to build the order.
type PricedCart struct {
	Items          []OrderItem
	Subtotal       int64
	DiscountAmount int64
	ShippingCost   int64
	TotalAmount    int64
	Currency       string
	Discount       *DiscountSnapshot
}

type ResolveDiscountCommand struct {
	UserID     string
	Subtotal   int64
	CouponCode string
	CampaignID string
}

type CreateOrderCommand struct {
	UserID        string
	CustomerType  CustomerType
	Items         []CartLine
	PaymentMethod PaymentMethod
	ShippingAddr  Address
	BillingAddr   Address
	CouponCode    string
	CampaignID    string
	Consents      map[string]bool
	Metadata      map[string]any
}

// OrderQuery scopes a single-order read. UserID empty means admin access.
type OrderQuery struct {
	OrderID string
	UserID  string
}

type OrderListFilter = repositories.OrderListFilter

type CancelOrderCommand struct {
	OrderID string
	UserID  string
	ActorID string
	Reason  string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Note         string
}

type UpdateTrackingCommand struct {
	OrderID        string
	Carrier        string
	TrackingNumber string
	ActorID        string
}

type ApproveBankTransferCommand struct {
	OrderID        string
	ApprovedAmount int64
	Note           string
	ActorID        string
	// AcceptDiscrepancy lets the operator confirm an amount outside the
	// configured tolerance after manual review.
	AcceptDiscrepancy bool
}

type RejectBankTransferCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

type RefundCommand struct {
	OrderID string
	Amount  int64
	Reason  string
	ActorID string
}

type InitiatePaymentCommand struct {
	OrderID string
	UserID  string
	Locale  string
}

// BankTransferInstructions carries the manual remittance details returned for
// bank-transfer orders.
type BankTransferInstructions struct {
	Account   string
	Currency  string
	Reference string
	Amount    int64
	Deadline  time.Time
	Language  string
	Text      string
}

// PaymentInstructions is the initiation result handed back to the client.
type PaymentInstructions struct {
	Method       PaymentMethod
	RedirectURL  string
	ExpiresAt    time.Time
	BankTransfer *BankTransferInstructions
}

type PaymentStatusView struct {
	OrderNumber  string
	Status       PaymentStatus
	Method       PaymentMethod
	Amount       int64
	Currency     string
	RefundAmount int64
}

type PaymentCallbackCommand struct {
	OrderReference string
	Status         string
	Amount         int64
	IntegrityToken string
}

// CallbackResult reports how a PSP callback was handled. Applied is false for
// duplicate deliveries and for non-terminal statuses.
type CallbackResult struct {
	Order   Order
	Applied bool
}
