package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string {
	return fmt.Sprintf("stub repo error (notFound=%v conflict=%v unavailable=%v)", e.notFound, e.conflict, e.unavailable)
}

func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

// stubOrderRepository stores orders in memory and mimics the terminal-state
// guard of the real TransitionPayment implementation.
type stubOrderRepository struct {
	orders map[string]domain.Order

	insertErrs      []error
	insertCalls     int
	inserted        []domain.Order
	updateErr       error
	findErr         error
	listPage        domain.CursorPage[domain.Order]
	listErr         error
	transitionErr   error
	transitionCalls int
	lastTransition  repositories.PaymentTransition

	refundErr         error
	refundCalls       int
	beforeApplyRefund func(*stubOrderRepository)
}

func newStubOrderRepository(orders ...domain.Order) *stubOrderRepository {
	repo := &stubOrderRepository{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	call := r.insertCalls
	r.insertCalls++
	if call < len(r.insertErrs) && r.insertErrs[call] != nil {
		return r.insertErrs[call]
	}
	r.inserted = append(r.inserted, order)
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepository) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	if r.updateErr != nil {
		return domain.Order{}, r.updateErr
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	if r.findErr != nil {
		return domain.Order{}, r.findErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, &stubRepoError{notFound: true}
	}
	return order, nil
}

func (r *stubOrderRepository) FindByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	if r.findErr != nil {
		return domain.Order{}, r.findErr
	}
	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return domain.Order{}, &stubRepoError{notFound: true}
}

func (r *stubOrderRepository) FindByTransactionID(_ context.Context, transactionID string) (domain.Order, error) {
	if r.findErr != nil {
		return domain.Order{}, r.findErr
	}
	for _, order := range r.orders {
		if order.Payment.TransactionID == transactionID {
			return order, nil
		}
	}
	return domain.Order{}, &stubRepoError{notFound: true}
}

func (r *stubOrderRepository) List(_ context.Context, _ repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r.listErr != nil {
		return domain.CursorPage[domain.Order]{}, r.listErr
	}
	return r.listPage, nil
}

func (r *stubOrderRepository) TransitionPayment(_ context.Context, orderID string, transition repositories.PaymentTransition) (repositories.PaymentTransitionResult, error) {
	r.transitionCalls++
	r.lastTransition = transition
	if r.transitionErr != nil {
		return repositories.PaymentTransitionResult{}, r.transitionErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return repositories.PaymentTransitionResult{}, &stubRepoError{notFound: true}
	}
	if order.Payment.Status.IsTerminal() || order.Status.IsTerminal() {
		return repositories.PaymentTransitionResult{Order: order, Applied: false}, nil
	}
	order.Payment.Status = transition.PaymentStatus
	order.Status = transition.OrderStatus
	if transition.TransactionID != "" {
		order.Payment.TransactionID = transition.TransactionID
	}
	if transition.PaymentDate != nil {
		order.Payment.PaymentDate = transition.PaymentDate
	}
	if transition.Discrepancy != nil {
		order.Payment.Discrepancy = transition.Discrepancy
	}
	if transition.CancelReason != nil {
		order.CancelReason = transition.CancelReason
	}
	switch transition.OrderStatus {
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &transition.Now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &transition.Now
	}
	order.UpdatedAt = transition.Now
	r.orders[orderID] = order
	return repositories.PaymentTransitionResult{Order: order, Applied: true}, nil
}

func (r *stubOrderRepository) ApplyRefund(_ context.Context, orderID string, refund repositories.RefundApplication) (repositories.RefundApplicationResult, error) {
	r.refundCalls++
	if r.beforeApplyRefund != nil {
		r.beforeApplyRefund(r)
		r.beforeApplyRefund = nil
	}
	if r.refundErr != nil {
		return repositories.RefundApplicationResult{}, r.refundErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return repositories.RefundApplicationResult{}, &stubRepoError{notFound: true}
	}
	remaining := order.Total - order.Payment.RefundAmount
	if order.Payment.Status != domain.PaymentStatusCompleted || refund.Amount > remaining {
		return repositories.RefundApplicationResult{Order: order, Applied: false}, nil
	}
	before := order.Payment.RefundAmount
	order.Payment.RefundAmount += refund.Amount
	now := refund.Now
	order.Payment.RefundDate = &now
	if order.Payment.RefundAmount >= order.Total {
		order.Payment.Status = domain.PaymentStatusRefunded
		order.Status = domain.OrderStatusReturned
	}
	order.AdminNotes = append(order.AdminNotes, domain.AdminNote{
		Actor:     refund.Actor,
		Note:      refund.Note,
		Field:     "payment.refundAmount",
		Before:    fmt.Sprintf("%d", before),
		After:     fmt.Sprintf("%d", order.Payment.RefundAmount),
		CreatedAt: now,
	})
	order.UpdatedAt = now
	r.orders[orderID] = order
	return repositories.RefundApplicationResult{Order: order, Applied: true}, nil
}

type stubProductRepository struct {
	products   map[string]domain.Product
	findErr    error
	decErr     error
	decrements map[string]int
}

func newStubProductRepository(products ...domain.Product) *stubProductRepository {
	repo := &stubProductRepository{
		products:   map[string]domain.Product{},
		decrements: map[string]int{},
	}
	for _, product := range products {
		repo.products[product.ID] = product
	}
	return repo
}

func (r *stubProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if r.findErr != nil {
		return domain.Product{}, r.findErr
	}
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, &stubRepoError{notFound: true}
	}
	return product, nil
}

func (r *stubProductRepository) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	found := map[string]domain.Product{}
	for _, id := range productIDs {
		if product, ok := r.products[id]; ok {
			found[id] = product
		}
	}
	return found, nil
}

func (r *stubProductRepository) DecrementStock(_ context.Context, productID string, quantity int) (domain.Stock, error) {
	if r.decErr != nil {
		return domain.Stock{}, r.decErr
	}
	r.decrements[productID] += quantity
	product := r.products[productID]
	product.Stock.Quantity -= quantity
	if product.Stock.Quantity < 0 {
		product.Stock.Quantity = 0
	}
	r.products[productID] = product
	return product.Stock, nil
}

type stubCouponRepository struct {
	coupon   domain.Coupon
	err      error
	lastCode string
}

func (r *stubCouponRepository) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.lastCode = code
	if r.err != nil {
		return domain.Coupon{}, r.err
	}
	return r.coupon, nil
}

func (r *stubCouponRepository) FindByID(_ context.Context, _ string) (domain.Coupon, error) {
	if r.err != nil {
		return domain.Coupon{}, r.err
	}
	return r.coupon, nil
}

type stubCampaignRepository struct {
	campaign domain.Campaign
	err      error
	auto     []domain.Campaign
	autoErr  error
}

func (r *stubCampaignRepository) FindByID(_ context.Context, _ string) (domain.Campaign, error) {
	if r.err != nil {
		return domain.Campaign{}, r.err
	}
	return r.campaign, nil
}

func (r *stubCampaignRepository) ListAutoApply(_ context.Context, _ time.Time) ([]domain.Campaign, error) {
	if r.autoErr != nil {
		return nil, r.autoErr
	}
	return r.auto, nil
}

type stubUsageRepository struct {
	bySource map[string]int
	byUser   map[string]int
	countErr error

	appendErr error
	appended  []domain.DiscountUsage
}

func usageKey(sourceType domain.DiscountSourceType, sourceRef string) string {
	return string(sourceType) + "/" + sourceRef
}

func (r *stubUsageRepository) Append(_ context.Context, usage domain.DiscountUsage) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, usage)
	return nil
}

func (r *stubUsageRepository) CountBySource(_ context.Context, sourceType domain.DiscountSourceType, sourceRef string) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.bySource[usageKey(sourceType, sourceRef)], nil
}

func (r *stubUsageRepository) CountBySourceAndUser(_ context.Context, sourceType domain.DiscountSourceType, sourceRef string, userID string) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.byUser[usageKey(sourceType, sourceRef)+"/"+userID], nil
}

type stubEventPublisher struct {
	events []OrderEvent
	err    error
}

func (p *stubEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type stubPricingService struct {
	result  PricedCart
	err     error
	lastCmd PriceCartCommand
}

func (s *stubPricingService) PriceCart(_ context.Context, cmd PriceCartCommand) (PricedCart, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return PricedCart{}, s.err
	}
	return s.result, nil
}

type stubDiscountService struct {
	snapshot *DiscountSnapshot
	err      error
	lastCmd  ResolveDiscountCommand
}

func (s *stubDiscountService) Resolve(_ context.Context, cmd ResolveDiscountCommand) (*DiscountSnapshot, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

type stubRefundManager struct {
	details    payments.PaymentDetails
	err        error
	calls      int
	lastMethod string
	lastReq    payments.RefundRequest
}

func (m *stubRefundManager) Refund(_ context.Context, method string, req payments.RefundRequest) (payments.PaymentDetails, error) {
	m.calls++
	m.lastMethod = method
	m.lastReq = req
	if m.err != nil {
		return payments.PaymentDetails{}, m.err
	}
	return m.details, nil
}

type stubSessionManager struct {
	session    payments.Session
	err        error
	lastMethod string
	lastReq    payments.SessionRequest
}

func (m *stubSessionManager) CreateSession(_ context.Context, method string, req payments.SessionRequest) (payments.Session, error) {
	m.lastMethod = method
	m.lastReq = req
	if m.err != nil {
		return payments.Session{}, m.err
	}
	return m.session, nil
}

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (r *stubHealthRepository) Collect(_ context.Context) (domain.SystemHealthReport, error) {
	if r.err != nil {
		return domain.SystemHealthReport{}, r.err
	}
	return r.report, nil
}
