package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

// paymentEffects bundles the best-effort side effects that follow a confirmed
// payment: usage-ledger append, per-item stock decrement, and the confirmation
// event. Each step has an independent failure domain; failures are logged and
// never roll back the already-committed payment transition.
type paymentEffects struct {
	products repositories.ProductRepository
	usages   repositories.DiscountUsageRepository
	events   OrderEventPublisher
	newID    func() string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

func newPaymentEffects(
	products repositories.ProductRepository,
	usages repositories.DiscountUsageRepository,
	events OrderEventPublisher,
	clock func() time.Time,
	logger func(ctx context.Context, event string, fields map[string]any),
) *paymentEffects {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentEffects{
		products: products,
		usages:   usages,
		events:   events,
		newID: func() string {
			return ulid.Make().String()
		},
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}
}

// applyConfirmation runs the post-confirmation side effects for an order whose
// payment transition has just been applied for the first time. The caller's
// compare-and-swap on the payment status guarantees this runs at most once per
// order, so no per-item flag is needed.
func (fx *paymentEffects) applyConfirmation(ctx context.Context, order Order, actor string) {
	fx.recordDiscountUsage(ctx, order)
	fx.decrementStock(ctx, order)
	fx.publish(ctx, OrderEvent{
		Type:          "order.payment.completed",
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		ActorID:       actor,
		OccurredAt:    fx.now(),
	})
}

func (fx *paymentEffects) recordDiscountUsage(ctx context.Context, order Order) {
	if fx.usages == nil || order.DiscountSrc == nil {
		return
	}
	usage := domain.DiscountUsage{
		ID:         "use_" + fx.newID(),
		SourceType: order.DiscountSrc.SourceType,
		SourceRef:  order.DiscountSrc.SourceRef,
		UserID:     order.UserID,
		OrderRef:   order.ID,
		Amount:     order.DiscountSrc.Amount,
		UsedAt:     fx.now(),
	}
	if err := fx.usages.Append(ctx, usage); err != nil {
		fx.logger(ctx, "order.discount_usage.append_failed", map[string]any{
			"orderId":   order.ID,
			"sourceRef": usage.SourceRef,
			"error":     err.Error(),
		})
	}
}

// decrementStock decrements each line independently: one failed line is logged
// and skipped, the remaining lines still decrement.
func (fx *paymentEffects) decrementStock(ctx context.Context, order Order) {
	if fx.products == nil {
		return
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		if _, err := fx.products.DecrementStock(ctx, item.ProductRef, item.Quantity); err != nil {
			fx.logger(ctx, "order.stock.decrement_failed", map[string]any{
				"orderId":   order.ID,
				"productId": item.ProductRef,
				"quantity":  item.Quantity,
				"error":     err.Error(),
			})
		}
	}
}

func (fx *paymentEffects) publish(ctx context.Context, event OrderEvent) {
	if fx.events == nil {
		return
	}
	if err := fx.events.PublishOrderEvent(ctx, event); err != nil {
		fx.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
