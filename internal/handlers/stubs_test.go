package handlers

import (
	"context"
	"net/http"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/platform/auth"
	"github.com/oakmart/api/internal/services"
)

// identityMiddleware injects a fixed identity, standing in for the Firebase
// verification layer which is not exercised in handler tests.
func identityMiddleware(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

type stubOrderService struct {
	order domain.Order
	page  domain.CursorPage[domain.Order]
	err   error

	createCmd     *services.CreateOrderCommand
	query         *services.OrderQuery
	listFilter    *services.OrderListFilter
	cancelCmd     *services.CancelOrderCommand
	transitionCmd *services.OrderStatusTransitionCommand
	trackingCmd   *services.UpdateTrackingCommand
	approveCmd    *services.ApproveBankTransferCommand
	rejectCmd     *services.RejectBankTransferCommand
	refundCmd     *services.RefundCommand
}

var _ services.OrderService = (*stubOrderService)(nil)

func (s *stubOrderService) CreateOrder(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	s.createCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, query services.OrderQuery) (domain.Order, error) {
	s.query = &query
	return s.order, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.listFilter = &filter
	return s.page, s.err
}

func (s *stubOrderService) CancelOrder(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	s.cancelCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) TransitionStatus(_ context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	s.transitionCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) UpdateTracking(_ context.Context, cmd services.UpdateTrackingCommand) (domain.Order, error) {
	s.trackingCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) ApproveBankTransfer(_ context.Context, cmd services.ApproveBankTransferCommand) (domain.Order, error) {
	s.approveCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) RejectBankTransfer(_ context.Context, cmd services.RejectBankTransferCommand) (domain.Order, error) {
	s.rejectCmd = &cmd
	return s.order, s.err
}

func (s *stubOrderService) ProcessRefund(_ context.Context, cmd services.RefundCommand) (domain.Order, error) {
	s.refundCmd = &cmd
	return s.order, s.err
}

type stubPaymentService struct {
	instructions services.PaymentInstructions
	view         services.PaymentStatusView
	err          error

	initiateCmd *services.InitiatePaymentCommand
	statusQuery *services.OrderQuery
}

var _ services.PaymentService = (*stubPaymentService)(nil)

func (s *stubPaymentService) InitiatePayment(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInstructions, error) {
	s.initiateCmd = &cmd
	return s.instructions, s.err
}

func (s *stubPaymentService) GetPaymentStatus(_ context.Context, query services.OrderQuery) (services.PaymentStatusView, error) {
	s.statusQuery = &query
	return s.view, s.err
}

type stubReconcilerService struct {
	result services.CallbackResult
	err    error

	commands []services.PaymentCallbackCommand
}

var _ services.ReconcilerService = (*stubReconcilerService)(nil)

func (s *stubReconcilerService) ProcessCallback(_ context.Context, cmd services.PaymentCallbackCommand) (services.CallbackResult, error) {
	s.commands = append(s.commands, cmd)
	return s.result, s.err
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

var _ services.SystemService = (*stubSystemService)(nil)

func (s *stubSystemService) HealthReport(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func testOrder() domain.Order {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return domain.Order{
		ID:           "ord_1",
		OrderNumber:  "OM-20260314-ABCDEF",
		UserID:       "user-1",
		CustomerType: domain.CustomerTypeIndividual,
		Status:       domain.OrderStatusPending,
		Currency:     "EUR",
		Items: []domain.OrderItem{
			{
				ProductRef: "prod_a",
				Name:       "Widget",
				SKU:        "WID-1",
				UnitPrice:  5000,
				Quantity:   2,
				Total:      10000,
			},
		},
		Subtotal: 10000,
		Shipping: 2500,
		Total:    12500,
		Payment: domain.PaymentInfo{
			Method: domain.PaymentMethodBankTransfer,
			Status: domain.PaymentStatusPending,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}
