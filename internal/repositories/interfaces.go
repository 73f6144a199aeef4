package repositories

import (
	"context"
	"time"

	domain "github.com/oakmart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order aggregates and provides query helpers for users and admins.
//
// Insert reserves the order number atomically with the order document; a
// RepositoryError with IsConflict is returned when the number is already
// taken so callers can regenerate and retry.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	TransitionPayment(ctx context.Context, orderID string, transition PaymentTransition) (PaymentTransitionResult, error)
	ApplyRefund(ctx context.Context, orderID string, refund RefundApplication) (RefundApplicationResult, error)
}

// PaymentTransition mutates the payment sub-state of an order inside a single
// storage transaction. The transition is only applied when both the current
// payment status and the current order status are non-terminal; replays of
// settled callbacks and callbacks for cancelled orders become no-ops.
type PaymentTransition struct {
	PaymentStatus domain.PaymentStatus
	OrderStatus   domain.OrderStatus
	TransactionID string
	PaymentDate   *time.Time
	CancelReason  *string
	Discrepancy   *domain.PaymentDiscrepancy
	Details       map[string]any
	Now           time.Time
}

// PaymentTransitionResult reports whether the transition was applied and the
// resulting order snapshot either way.
type PaymentTransitionResult struct {
	Order   domain.Order
	Applied bool
}

// RefundApplication adds to the order's cumulative refunded amount inside a
// single storage transaction. The write only happens when the payment is
// completed and the new cumulative amount stays within the order total, so
// concurrent refunds cannot overdraw the balance. A full refund settles the
// refunded/returned terminal pair in the same write.
type RefundApplication struct {
	Amount int64
	Actor  string
	Note   string
	Now    time.Time
}

// RefundApplicationResult reports whether the refund was booked and the
// order snapshot either way.
type RefundApplicationResult struct {
	Order   domain.Order
	Applied bool
}

// CouponRepository resolves coupon definitions; coupons are reference data
// maintained out of band and read-mostly here.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
}

// CampaignRepository resolves campaign definitions including auto-applied ones.
type CampaignRepository interface {
	FindByID(ctx context.Context, campaignID string) (domain.Campaign, error)
	ListAutoApply(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// ProductRepository exposes the catalog projection this service reads and the
// single stock mutation it performs.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int) (domain.Stock, error)
}

// DiscountUsageRepository owns the append-only usage ledger backing global
// and per-user redemption limits.
type DiscountUsageRepository interface {
	Append(ctx context.Context, usage domain.DiscountUsage) error
	CountBySource(ctx context.Context, sourceType domain.DiscountSourceType, sourceRef string) (int, error)
	CountBySourceAndUser(ctx context.Context, sourceType domain.DiscountSourceType, sourceRef string, userID string) (int, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings for user history and admin queries.
type OrderListFilter struct {
	UserID        string
	Status        []string
	PaymentStatus []string
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}
