package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/repositories"
)

const (
	callbackStatusSuccess = "success"
	callbackStatusFailed  = "failed"
	callbackStatusWaiting = "waiting"
)

var (
	// ErrCallbackInvalidInput signals a malformed callback payload.
	ErrCallbackInvalidInput = errors.New("callback: invalid input")
	// ErrCallbackSignature indicates the integrity token did not match the payload.
	ErrCallbackSignature = errors.New("callback: signature mismatch")
	// ErrCallbackOrderNotFound indicates no order matches the callback reference.
	ErrCallbackOrderNotFound = errors.New("callback: order not found")
	// ErrCallbackUnknownStatus indicates the PSP sent an unrecognised status value.
	ErrCallbackUnknownStatus = errors.New("callback: unknown status")
	// ErrCallbackUnavailable indicates the order store is unreachable.
	ErrCallbackUnavailable = errors.New("callback: unavailable")
)

// ReconcilerDeps wires the collaborators required by the callback reconciler.
type ReconcilerDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Usages   repositories.DiscountUsageRepository
	Events   OrderEventPublisher
	Secret   []byte
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type reconcilerService struct {
	orders  repositories.OrderRepository
	effects *paymentEffects
	events  OrderEventPublisher
	secret  []byte
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewReconcilerService constructs a ReconcilerService validating required dependencies.
func NewReconcilerService(deps ReconcilerDeps) (ReconcilerService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciler: order repository is required")
	}
	if len(deps.Secret) == 0 {
		return nil, errors.New("reconciler: callback secret is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconcilerService{
		orders:  deps.Orders,
		effects: newPaymentEffects(deps.Products, deps.Usages, deps.Events, clock, logger),
		events:  deps.Events,
		secret:  deps.Secret,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ProcessCallback verifies and applies a PSP notification. The terminal-state
// check and write run as one conditional update inside the order repository,
// so a duplicate or concurrent delivery of the same notification observes the
// terminal payment status and becomes a no-op acknowledgement.
func (s *reconcilerService) ProcessCallback(ctx context.Context, cmd PaymentCallbackCommand) (CallbackResult, error) {
	reference := strings.TrimSpace(cmd.OrderReference)
	status := strings.ToLower(strings.TrimSpace(cmd.Status))
	if reference == "" || status == "" {
		return CallbackResult{}, fmt.Errorf("%w: order reference and status are required", ErrCallbackInvalidInput)
	}

	if !payments.VerifyIntegrityToken(s.secret, reference, status, cmd.Amount, cmd.IntegrityToken) {
		s.logger(ctx, "payment.callback.forged", map[string]any{
			"orderReference": reference,
			"status":         status,
			"amount":         cmd.Amount,
		})
		return CallbackResult{}, ErrCallbackSignature
	}

	order, err := s.lookupOrder(ctx, reference)
	if err != nil {
		return CallbackResult{}, err
	}

	switch status {
	case callbackStatusSuccess:
		return s.applySuccess(ctx, order, cmd)
	case callbackStatusFailed:
		return s.applyFailure(ctx, order)
	case callbackStatusWaiting:
		// The payment stays in flight; acknowledge so the PSP stops retrying.
		return CallbackResult{Order: order, Applied: false}, nil
	default:
		return CallbackResult{}, fmt.Errorf("%w: %q", ErrCallbackUnknownStatus, status)
	}
}

// lookupOrder resolves the callback reference against the transaction id
// first, then the order number. A miss never creates an order.
func (s *reconcilerService) lookupOrder(ctx context.Context, reference string) (Order, error) {
	order, err := s.orders.FindByTransactionID(ctx, reference)
	if err == nil {
		return order, nil
	}
	if !isRepoNotFound(err) {
		return Order{}, s.mapRepositoryError(err)
	}
	order, err = s.orders.FindByNumber(ctx, reference)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *reconcilerService) applySuccess(ctx context.Context, order Order, cmd PaymentCallbackCommand) (CallbackResult, error) {
	now := s.now()

	var discrepancy *PaymentDiscrepancy
	if cmd.Amount != order.Total {
		discrepancy = &PaymentDiscrepancy{
			ExpectedAmount: order.Total,
			ActualAmount:   cmd.Amount,
			RecordedAt:     now,
			Note:           "psp callback amount mismatch",
		}
		s.logger(ctx, "payment.callback.amount_mismatch", map[string]any{
			"orderId":  order.ID,
			"expected": order.Total,
			"received": cmd.Amount,
		})
	}

	result, err := s.orders.TransitionPayment(ctx, order.ID, repositories.PaymentTransition{
		PaymentStatus: domain.PaymentStatusCompleted,
		OrderStatus:   domain.OrderStatusConfirmed,
		TransactionID: firstNonEmptyString(order.Payment.TransactionID, cmd.OrderReference),
		PaymentDate:   &now,
		Discrepancy:   discrepancy,
		Details: map[string]any{
			"callbackAmount": cmd.Amount,
		},
		Now: now,
	})
	if err != nil {
		return CallbackResult{}, s.mapRepositoryError(err)
	}
	if !result.Applied {
		return CallbackResult{Order: result.Order, Applied: false}, nil
	}

	s.effects.applyConfirmation(ctx, result.Order, "psp")
	return CallbackResult{Order: result.Order, Applied: true}, nil
}

func (s *reconcilerService) applyFailure(ctx context.Context, order Order) (CallbackResult, error) {
	now := s.now()
	reason := "payment failed"

	result, err := s.orders.TransitionPayment(ctx, order.ID, repositories.PaymentTransition{
		PaymentStatus: domain.PaymentStatusFailed,
		OrderStatus:   domain.OrderStatusCancelled,
		TransactionID: order.Payment.TransactionID,
		CancelReason:  &reason,
		Now:           now,
	})
	if err != nil {
		return CallbackResult{}, s.mapRepositoryError(err)
	}
	if !result.Applied {
		return CallbackResult{Order: result.Order, Applied: false}, nil
	}

	if s.events != nil {
		if err := s.events.PublishOrderEvent(ctx, OrderEvent{
			Type:           orderEventPaymentFailed,
			OrderID:        result.Order.ID,
			OrderNumber:    result.Order.OrderNumber,
			UserID:         result.Order.UserID,
			PreviousStatus: string(order.Status),
			CurrentStatus:  string(result.Order.Status),
			PaymentStatus:  string(result.Order.Payment.Status),
			ActorID:        "psp",
			OccurredAt:     now,
		}); err != nil {
			s.logger(ctx, "order.event.publish_failed", map[string]any{
				"type":  orderEventPaymentFailed,
				"order": result.Order.ID,
				"error": err.Error(),
			})
		}
	}

	return CallbackResult{Order: result.Order, Applied: true}, nil
}

func (s *reconcilerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCallbackOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCallbackUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCallbackUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
