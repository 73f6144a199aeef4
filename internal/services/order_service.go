package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentFailed   = "order.payment.failed"
	orderEventRefunded        = "order.refunded"
	orderEventTrackingUpdated = "order.tracking.updated"

	orderIDPrefix       = "ord_"
	orderNumberPrefix   = "OM"
	orderNumberAttempts = 3
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located (or is not visible to the caller).
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderNumberExhausted indicates number allocation failed after the bounded retries.
	ErrOrderNumberExhausted = errors.New("order: order number allocation exhausted")
	// ErrOrderUnavailable indicates the order store is unreachable.
	ErrOrderUnavailable = errors.New("order: unavailable")
	// ErrBankTransferAmountMismatch indicates the remitted amount is outside the
	// configured tolerance and the operator did not accept the discrepancy.
	ErrBankTransferAmountMismatch = errors.New("order: bank transfer amount outside tolerance")
	// ErrRefundExceedsBalance indicates the refund would exceed the remaining balance.
	ErrRefundExceedsBalance = errors.New("order: refund exceeds remaining balance")
	// ErrRefundInvalidState indicates the payment is not in a refundable state.
	ErrRefundInvalidState = errors.New("order: payment not refundable")
)

// orderStateTransitions is the explicit state machine table: illegal
// transitions are rejected by lookup, never by switch fallthrough.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusReturned},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusReturned},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusReturned},
	domain.OrderStatusDelivered:  {domain.OrderStatusReturned},
}

func canTransitionOrder(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// refundManager abstracts payments.Manager for easier testing.
type refundManager interface {
	Refund(ctx context.Context, method string, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders            repositories.OrderRepository
	Products          repositories.ProductRepository
	Usages            repositories.DiscountUsageRepository
	Pricing           PricingService
	Refunds           refundManager
	Events            OrderEventPublisher
	TransferTolerance int64
	Clock             func() time.Time
	IDGenerator       func() string
	Sanitizer         *bluemonday.Policy
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	pricing   PricingService
	refunds   refundManager
	events    OrderEventPublisher
	effects   *paymentEffects
	tolerance int64
	clock     func() time.Time
	newID     func() string
	sanitizer *bluemonday.Policy
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing service is required")
	}
	if deps.TransferTolerance < 0 {
		return nil, errors.New("order service: transfer tolerance must not be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.StrictPolicy()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		pricing:   deps.Pricing,
		refunds:   deps.Refunds,
		events:    deps.Events,
		effects:   newPaymentEffects(deps.Products, deps.Usages, deps.Events, clock, logger),
		tolerance: deps.TransferTolerance,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: sanitizer,
		logger:    logger,
	}, nil
}

// CreateOrder prices the cart, snapshots it into an immutable aggregate, and
// commits it under a freshly allocated order number. Allocation is optimistic:
// on a number collision the insert conflicts, a new candidate is generated,
// and the insert retried up to the attempt bound.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if !validPaymentMethod(cmd.PaymentMethod) {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	priced, err := s.pricing.PriceCart(ctx, PriceCartCommand{
		UserID:       userID,
		CustomerType: cmd.CustomerType,
		Items:        cmd.Items,
		CouponCode:   cmd.CouponCode,
		CampaignID:   cmd.CampaignID,
		BillingAddr:  cmd.BillingAddr,
	})
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	customerType := cmd.CustomerType
	if customerType == "" {
		customerType = domain.CustomerTypeIndividual
	}

	order := Order{
		ID:           orderIDPrefix + s.newID(),
		UserID:       userID,
		CustomerType: customerType,
		Status:       domain.OrderStatusPending,
		Currency:     priced.Currency,
		Items:        priced.Items,
		Subtotal:     priced.Subtotal,
		Discount:     priced.DiscountAmount,
		Shipping:     priced.ShippingCost,
		Total:        priced.TotalAmount,
		Payment: PaymentInfo{
			Method: cmd.PaymentMethod,
			Status: domain.PaymentStatusPending,
		},
		DiscountSrc:  priced.Discount,
		ShippingAddr: cmd.ShippingAddr,
		BillingAddr:  cmd.BillingAddr,
		Consents:     cloneBoolMap(cmd.Consents),
		Metadata:     cloneAnyMap(cmd.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = s.generateOrderNumber(now)
		err := s.orders.Insert(ctx, order)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			s.logger(ctx, "order.number.collision", map[string]any{
				"orderNumber": order.OrderNumber,
				"attempt":     attempt + 1,
			})
			continue
		}
		return Order{}, s.mapRepositoryError(err)
	}
	if lastErr != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderNumberExhausted, lastErr)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		ActorID:       userID,
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (Order, error) {
	order, err := s.findScoped(ctx, query)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// CancelOrder handles user-initiated cancellation, allowed only while the
// order is still pending and the payment has not completed.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.findScoped(ctx, OrderQuery{OrderID: cmd.OrderID, UserID: cmd.UserID})
	if err != nil {
		return Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: only pending orders can be cancelled", ErrOrderInvalidState)
	}
	if order.Payment.Status.IsTerminal() {
		return Order{}, fmt.Errorf("%w: payment already settled", ErrOrderInvalidState)
	}

	now := s.clock()
	prev := order.Status
	reason := s.sanitize(cmd.Reason)

	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	if reason != "" {
		order.CancelReason = &reason
	}
	order.UpdatedAt = now
	order = appendAdminNote(order, AdminNote{
		Actor:     firstNonEmptyString(strings.TrimSpace(cmd.ActorID), cmd.UserID),
		Note:      reason,
		Field:     "status",
		Before:    string(prev),
		After:     string(order.Status),
		CreatedAt: now,
	})

	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.UserID,
		OccurredAt:     now,
		Metadata:       reasonMetadata(reason),
	})

	return updated, nil
}

// TransitionStatus applies an admin-driven fulfillment transition, validated
// against the state machine table.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Status == target {
		return order, nil
	}
	if !canTransitionOrder(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	now := s.clock()
	prev := order.Status
	note := s.sanitize(cmd.Note)

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
		if note != "" {
			order.CancelReason = &note
		}
	}
	order = appendAdminNote(order, AdminNote{
		Actor:     strings.TrimSpace(cmd.ActorID),
		Note:      note,
		Field:     "status",
		Before:    string(prev),
		After:     string(target),
		CreatedAt: now,
	})

	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata:       reasonMetadata(note),
	})

	return updated, nil
}

// UpdateTracking records carrier metadata on a shipped order.
func (s *orderService) UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	carrier := strings.TrimSpace(cmd.Carrier)
	trackingNumber := strings.TrimSpace(cmd.TrackingNumber)
	if orderID == "" || carrier == "" || trackingNumber == "" {
		return Order{}, fmt.Errorf("%w: order id, carrier, and tracking number are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusShipped && order.Status != domain.OrderStatusDelivered {
		return Order{}, fmt.Errorf("%w: tracking requires a shipped order", ErrOrderInvalidState)
	}

	now := s.clock()
	before := ""
	if order.Tracking != nil {
		before = order.Tracking.Carrier + " " + order.Tracking.TrackingNumber
	}
	order.Tracking = &Tracking{
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		ShippedAt:      order.ShippedAt,
	}
	order.UpdatedAt = now
	order = appendAdminNote(order, AdminNote{
		Actor:     strings.TrimSpace(cmd.ActorID),
		Field:     "tracking",
		Before:    strings.TrimSpace(before),
		After:     carrier + " " + trackingNumber,
		CreatedAt: now,
	})

	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventTrackingUpdated,
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		UserID:        updated.UserID,
		CurrentStatus: string(updated.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"carrier":        carrier,
			"trackingNumber": trackingNumber,
		},
	})

	return updated, nil
}

// ApproveBankTransfer confirms a manually remitted payment. The remitted
// amount is checked against the expected total within the configured
// tolerance; any difference is recorded as a discrepancy, and amounts outside
// tolerance additionally require the operator to accept the discrepancy.
func (s *orderService) ApproveBankTransfer(ctx context.Context, cmd ApproveBankTransferCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.ApprovedAmount <= 0 {
		return Order{}, fmt.Errorf("%w: approved amount must be positive", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Payment.Method != domain.PaymentMethodBankTransfer {
		return Order{}, fmt.Errorf("%w: order is not a bank transfer", ErrOrderInvalidState)
	}
	if order.Payment.Status.IsTerminal() {
		return Order{}, fmt.Errorf("%w: payment already settled", ErrOrderInvalidState)
	}

	now := s.clock()
	note := s.sanitize(cmd.Note)
	diff := cmd.ApprovedAmount - order.Total

	var discrepancy *PaymentDiscrepancy
	if diff != 0 {
		discrepancy = &PaymentDiscrepancy{
			ExpectedAmount: order.Total,
			ActualAmount:   cmd.ApprovedAmount,
			RecordedAt:     now,
			Note:           note,
		}
		if abs64(diff) > s.tolerance && !cmd.AcceptDiscrepancy {
			return Order{}, fmt.Errorf("%w: expected %d, remitted %d", ErrBankTransferAmountMismatch, order.Total, cmd.ApprovedAmount)
		}
	}

	result, err := s.orders.TransitionPayment(ctx, order.ID, repositories.PaymentTransition{
		PaymentStatus: domain.PaymentStatusCompleted,
		OrderStatus:   domain.OrderStatusConfirmed,
		TransactionID: firstNonEmptyString(order.Payment.TransactionID, order.OrderNumber),
		PaymentDate:   &now,
		Discrepancy:   discrepancy,
		Details: map[string]any{
			"approvedBy":     strings.TrimSpace(cmd.ActorID),
			"approvedAmount": cmd.ApprovedAmount,
		},
		Now: now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !result.Applied {
		return Order{}, fmt.Errorf("%w: payment already settled", ErrOrderInvalidState)
	}

	updated := s.appendNoteBestEffort(ctx, result.Order, AdminNote{
		Actor:     strings.TrimSpace(cmd.ActorID),
		Note:      note,
		Field:     "payment.status",
		Before:    string(order.Payment.Status),
		After:     string(domain.PaymentStatusCompleted),
		CreatedAt: now,
	})

	s.effects.applyConfirmation(ctx, updated, cmd.ActorID)
	return updated, nil
}

// RejectBankTransfer fails the payment and cancels the order.
func (s *orderService) RejectBankTransfer(ctx context.Context, cmd RejectBankTransferCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Payment.Method != domain.PaymentMethodBankTransfer {
		return Order{}, fmt.Errorf("%w: order is not a bank transfer", ErrOrderInvalidState)
	}

	now := s.clock()
	reason := s.sanitize(cmd.Reason)

	result, err := s.orders.TransitionPayment(ctx, order.ID, repositories.PaymentTransition{
		PaymentStatus: domain.PaymentStatusFailed,
		OrderStatus:   domain.OrderStatusCancelled,
		TransactionID: order.Payment.TransactionID,
		CancelReason:  optionalTrimmed(reason),
		Now:           now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !result.Applied {
		return Order{}, fmt.Errorf("%w: payment already settled", ErrOrderInvalidState)
	}

	updated := s.appendNoteBestEffort(ctx, result.Order, AdminNote{
		Actor:     strings.TrimSpace(cmd.ActorID),
		Note:      reason,
		Field:     "payment.status",
		Before:    string(order.Payment.Status),
		After:     string(domain.PaymentStatusFailed),
		CreatedAt: now,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentFailed,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		PaymentStatus:  string(updated.Payment.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata:       reasonMetadata(reason),
	})

	return updated, nil
}

// ProcessRefund books a full or partial refund. The cumulative refunded
// amount never exceeds the order total; reaching the full total forces the
// refunded/returned terminal pair.
func (s *orderService) ProcessRefund(ctx context.Context, cmd RefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: refund amount must be positive", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Payment.Status != domain.PaymentStatusCompleted {
		return Order{}, fmt.Errorf("%w: payment status is %s", ErrRefundInvalidState, order.Payment.Status)
	}
	remaining := order.Total - order.Payment.RefundAmount
	if cmd.Amount > remaining {
		return Order{}, fmt.Errorf("%w: remaining %d, requested %d", ErrRefundExceedsBalance, remaining, cmd.Amount)
	}

	now := s.clock()
	reason := s.sanitize(cmd.Reason)

	if err := s.refundAtProvider(ctx, order, cmd.Amount, reason); err != nil {
		return Order{}, err
	}

	prevStatus := order.Status
	result, err := s.orders.ApplyRefund(ctx, order.ID, repositories.RefundApplication{
		Amount: cmd.Amount,
		Actor:  strings.TrimSpace(cmd.ActorID),
		Note:   reason,
		Now:    now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !result.Applied {
		// A concurrent refund or transition won the race; report against
		// the snapshot the store actually holds.
		if result.Order.Payment.Status != domain.PaymentStatusCompleted {
			return Order{}, fmt.Errorf("%w: payment status is %s", ErrRefundInvalidState, result.Order.Payment.Status)
		}
		return Order{}, fmt.Errorf("%w: remaining %d, requested %d",
			ErrRefundExceedsBalance, result.Order.Total-result.Order.Payment.RefundAmount, cmd.Amount)
	}
	updated := result.Order
	fullRefund := updated.Payment.RefundAmount >= updated.Total

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventRefunded,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		PaymentStatus:  string(updated.Payment.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"refundAmount": cmd.Amount,
			"fullRefund":   fullRefund,
		},
	})

	return updated, nil
}

// refundAtProvider attempts the refund at the PSP. Providers without a refund
// API (hosted page, bank transfer) settle out of band; for those the refund is
// bookkeeping only.
func (s *orderService) refundAtProvider(ctx context.Context, order Order, amount int64, reason string) error {
	if s.refunds == nil {
		return nil
	}
	_, err := s.refunds.Refund(ctx, string(order.Payment.Method), payments.RefundRequest{
		TransactionID: order.Payment.TransactionID,
		Amount:        &amount,
		Reason:        reason,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, payments.ErrRefundNotSupported) || errors.Is(err, payments.ErrUnsupportedMethod) {
		s.logger(ctx, "order.refund.manual_settlement", map[string]any{
			"orderId": order.ID,
			"method":  string(order.Payment.Method),
		})
		return nil
	}
	return fmt.Errorf("%w: psp refund failed: %v", ErrOrderUnavailable, err)
}

func (s *orderService) findScoped(ctx context.Context, query OrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(query.UserID); userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// appendNoteBestEffort persists an audit note after a payment transition. A
// failure here never unwinds the transition.
func (s *orderService) appendNoteBestEffort(ctx context.Context, order Order, note AdminNote) Order {
	withNote := appendAdminNote(order, note)
	updated, err := s.orders.Update(ctx, withNote)
	if err != nil {
		s.logger(ctx, "order.admin_note.append_failed", map[string]any{
			"orderId": order.ID,
			"field":   note.Field,
			"error":   err.Error(),
		})
		return order
	}
	return updated
}

func (s *orderService) generateOrderNumber(now time.Time) string {
	id := s.newID()
	suffix := id
	if len(id) > 6 {
		suffix = id[len(id)-6:]
	}
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.Format("20060102"), strings.ToUpper(suffix))
}

func (s *orderService) sanitize(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func appendAdminNote(order Order, note AdminNote) Order {
	notes := make([]AdminNote, 0, len(order.AdminNotes)+1)
	notes = append(notes, order.AdminNotes...)
	notes = append(notes, note)
	order.AdminNotes = notes
	return order
}

func validPaymentMethod(method PaymentMethod) bool {
	switch method {
	case domain.PaymentMethodHosted, domain.PaymentMethodCard, domain.PaymentMethodBankTransfer:
		return true
	}
	return false
}

func reasonMetadata(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}

func optionalTrimmed(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func cloneBoolMap(src map[string]bool) map[string]bool {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}
