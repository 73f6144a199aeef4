package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/platform/auth"
	"github.com/oakmart/api/internal/platform/httpx"
	"github.com/oakmart/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
	maxCancelBodySize    = 4 * 1024
)

// OrderHandlers exposes the customer-facing order and payment endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	limiter  func(http.Handler) http.Handler
}

// OrderHandlerOption customises order handler construction.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderRateLimit throttles order endpoints per caller. The middleware
// runs after authentication so signed-in callers are keyed by UID.
func WithOrderRateLimit(defaultPerMinute, authenticatedPerMinute int) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.limiter = RateLimitMiddleware(defaultPerMinute, authenticatedPerMinute)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.limiter != nil {
		r.Use(h.limiter)
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}/payment", h.initiatePayment)
	r.Get("/{orderID}/payment", h.getPaymentStatus)
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	CustomerType    string             `json:"customer_type"`
	Items           []orderLineRequest `json:"items"`
	PaymentMethod   string             `json:"payment_method"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	BillingAddress  addressPayload     `json:"billing_address"`
	CouponCode      string             `json:"coupon_code"`
	CampaignID      string             `json:"campaign_id"`
	Consents        map[string]bool    `json:"consents"`
	Metadata        map[string]any     `json:"metadata"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type initiatePaymentRequest struct {
	Locale string `json:"locale"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !ensureOrderService(ctx, w, h.orders) {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one item is required", http.StatusBadRequest))
		return
	}

	items := make([]services.CartLine, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.CartLine{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:        identity.UID,
		CustomerType:  domain.CustomerType(strings.ToLower(strings.TrimSpace(req.CustomerType))),
		Items:         items,
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ShippingAddr:  req.ShippingAddress.toDomain(),
		BillingAddr:   req.BillingAddress.toDomain(),
		CouponCode:    strings.TrimSpace(req.CouponCode),
		CampaignID:    strings.TrimSpace(req.CampaignID),
		Consents:      req.Consents,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !ensureOrderService(ctx, w, h.orders) {
		return
	}

	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = identity.UID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !ensureOrderService(ctx, w, h.orders) {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderQuery{OrderID: orderID, UserID: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !ensureOrderService(ctx, w, h.orders) {
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxCancelBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// cancellation without a reason is fine
	default:
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		UserID:  identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	body, err := readLimitedBody(r, maxCancelBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
	default:
		writeBodyError(ctx, w, err)
		return
	}

	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("Accept-Language"))
	}

	instructions, err := h.payments.InitiatePayment(ctx, services.InitiatePaymentCommand{
		OrderID: orderID,
		UserID:  identity.UID,
		Locale:  locale,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentInstructionsPayload(instructions))
}

func (h *OrderHandlers) getPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.payments.GetPaymentStatus(ctx, services.OrderQuery{OrderID: orderID, UserID: identity.UID})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentStatusPayload{
		OrderNumber:  view.OrderNumber,
		Status:       string(view.Status),
		Method:       string(view.Method),
		Amount:       view.Amount,
		Currency:     view.Currency,
		RefundAmount: view.RefundAmount,
	})
}

func ensureOrderService(ctx context.Context, w http.ResponseWriter, orders services.OrderService) bool {
	if orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func parseOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()

	filter := services.OrderListFilter{
		Status:        parseFilterValues(query["status"]),
		PaymentStatus: parseFilterValues(query["payment_status"]),
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		filter.DateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	filter.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}
	return filter, nil
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                    `json:"id"`
	OrderNumber     string                    `json:"order_number"`
	UserID          string                    `json:"user_id"`
	CustomerType    string                    `json:"customer_type"`
	Status          string                    `json:"status"`
	Currency        string                    `json:"currency"`
	Items           []orderItemPayload        `json:"items"`
	Subtotal        int64                     `json:"subtotal"`
	Discount        int64                     `json:"discount"`
	Shipping        int64                     `json:"shipping"`
	Total           int64                     `json:"total"`
	Payment         orderPaymentPayload       `json:"payment"`
	AppliedDiscount *discountSnapshotPayload  `json:"applied_discount,omitempty"`
	ShippingAddress addressPayload            `json:"shipping_address"`
	BillingAddress  addressPayload            `json:"billing_address"`
	Tracking        *trackingPayload          `json:"tracking,omitempty"`
	AdminNotes      []adminNotePayload        `json:"admin_notes,omitempty"`
	Metadata        map[string]any            `json:"metadata,omitempty"`
	CreatedAt       string                    `json:"created_at"`
	UpdatedAt       string                    `json:"updated_at,omitempty"`
	ConfirmedAt     string                    `json:"confirmed_at,omitempty"`
	ShippedAt       string                    `json:"shipped_at,omitempty"`
	DeliveredAt     string                    `json:"delivered_at,omitempty"`
	CancelledAt     string                    `json:"cancelled_at,omitempty"`
	CancelReason    string                    `json:"cancel_reason,omitempty"`
}

type orderItemPayload struct {
	ProductRef    string `json:"product_ref"`
	Name          string `json:"name"`
	SKU           string `json:"sku,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	Total         int64  `json:"total"`
}

type orderPaymentPayload struct {
	Method        string                     `json:"method"`
	Status        string                     `json:"status"`
	TransactionID string                     `json:"transaction_id,omitempty"`
	PaymentDate   string                     `json:"payment_date,omitempty"`
	RefundAmount  int64                      `json:"refund_amount,omitempty"`
	RefundDate    string                     `json:"refund_date,omitempty"`
	Discrepancy   *paymentDiscrepancyPayload `json:"discrepancy,omitempty"`
}

type paymentDiscrepancyPayload struct {
	ExpectedAmount int64  `json:"expected_amount"`
	ActualAmount   int64  `json:"actual_amount"`
	RecordedAt     string `json:"recorded_at"`
	Note           string `json:"note,omitempty"`
}

type discountSnapshotPayload struct {
	SourceType string `json:"source_type"`
	Code       string `json:"code,omitempty"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type"`
	Value      int64  `json:"value"`
	Amount     int64  `json:"amount"`
}

type trackingPayload struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	ShippedAt      string `json:"shipped_at,omitempty"`
}

type adminNotePayload struct {
	Actor     string `json:"actor,omitempty"`
	Note      string `json:"note,omitempty"`
	Field     string `json:"field"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
	CreatedAt string `json:"created_at"`
}

type paymentStatusPayload struct {
	OrderNumber  string `json:"order_number"`
	Status       string `json:"status"`
	Method       string `json:"method"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	RefundAmount int64  `json:"refund_amount,omitempty"`
}

type paymentInstructionsPayload struct {
	Method       string              `json:"method"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
	ExpiresAt    string              `json:"expires_at,omitempty"`
	BankTransfer *bankTransferDetail `json:"bank_transfer,omitempty"`
}

type bankTransferDetail struct {
	Account   string `json:"account"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Deadline  string `json:"deadline"`
	Language  string `json:"language"`
	Text      string `json:"text"`
}

func buildOrderListResponse(page domain.CursorPage[services.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, orderSummaryPayload{
			ID:            order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        string(order.Status),
			PaymentStatus: string(order.Payment.Status),
			Currency:      strings.ToUpper(order.Currency),
			Total:         order.Total,
			CreatedAt:     formatTime(order.CreatedAt),
		})
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		CustomerType:    string(order.CustomerType),
		Status:          string(order.Status),
		Currency:        strings.ToUpper(order.Currency),
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:        order.Subtotal,
		Discount:        order.Discount,
		Shipping:        order.Shipping,
		Total:           order.Total,
		Payment:         buildOrderPaymentPayload(order.Payment),
		ShippingAddress: buildAddressPayload(order.ShippingAddr),
		BillingAddress:  buildAddressPayload(order.BillingAddr),
		Metadata:        cloneMap(order.Metadata),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		ConfirmedAt:     formatTime(pointerTime(order.ConfirmedAt)),
		ShippedAt:       formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:     formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:     formatTime(pointerTime(order.CancelledAt)),
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductRef:    item.ProductRef,
			Name:          item.Name,
			SKU:           item.SKU,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			OriginalPrice: item.OriginalPrice,
			Total:         item.Total,
		})
	}

	if order.DiscountSrc != nil {
		payload.AppliedDiscount = &discountSnapshotPayload{
			SourceType: string(order.DiscountSrc.SourceType),
			Code:       order.DiscountSrc.Code,
			Name:       order.DiscountSrc.Name,
			Type:       string(order.DiscountSrc.Type),
			Value:      order.DiscountSrc.Value,
			Amount:     order.DiscountSrc.Amount,
		}
	}

	if order.Tracking != nil {
		payload.Tracking = &trackingPayload{
			Carrier:        order.Tracking.Carrier,
			TrackingNumber: order.Tracking.TrackingNumber,
			ShippedAt:      formatTime(pointerTime(order.Tracking.ShippedAt)),
		}
	}

	for _, note := range order.AdminNotes {
		payload.AdminNotes = append(payload.AdminNotes, adminNotePayload{
			Actor:     note.Actor,
			Note:      note.Note,
			Field:     note.Field,
			Before:    note.Before,
			After:     note.After,
			CreatedAt: formatTime(note.CreatedAt),
		})
	}

	return payload
}

func buildOrderPaymentPayload(info domain.PaymentInfo) orderPaymentPayload {
	payload := orderPaymentPayload{
		Method:        string(info.Method),
		Status:        string(info.Status),
		TransactionID: info.TransactionID,
		PaymentDate:   formatTime(pointerTime(info.PaymentDate)),
		RefundAmount:  info.RefundAmount,
		RefundDate:    formatTime(pointerTime(info.RefundDate)),
	}
	if info.Discrepancy != nil {
		payload.Discrepancy = &paymentDiscrepancyPayload{
			ExpectedAmount: info.Discrepancy.ExpectedAmount,
			ActualAmount:   info.Discrepancy.ActualAmount,
			RecordedAt:     formatTime(info.Discrepancy.RecordedAt),
			Note:           info.Discrepancy.Note,
		}
	}
	return payload
}

func buildPaymentInstructionsPayload(instr services.PaymentInstructions) paymentInstructionsPayload {
	payload := paymentInstructionsPayload{
		Method:      string(instr.Method),
		RedirectURL: instr.RedirectURL,
	}
	if !instr.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(instr.ExpiresAt)
	}
	if instr.BankTransfer != nil {
		payload.BankTransfer = &bankTransferDetail{
			Account:   instr.BankTransfer.Account,
			Currency:  instr.BankTransfer.Currency,
			Reference: instr.BankTransfer.Reference,
			Amount:    instr.BankTransfer.Amount,
			Deadline:  formatTime(instr.BankTransfer.Deadline),
			Language:  instr.BankTransfer.Language,
			Text:      instr.BankTransfer.Text,
		}
	}
	return payload
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var outOfStock *services.OutOfStockError
	switch {
	case errors.As(err, &outOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", outOfStock.Error(), http.StatusConflict).WithDetails(map[string]any{
			"product_id": outOfStock.ProductID,
			"requested":  outOfStock.Requested,
			"available":  outOfStock.Available,
		}))
	case errors.Is(err, services.ErrPricingMissingBillingFields):
		httpx.WriteError(ctx, w, httpx.NewError("missing_billing_fields", "business orders require company name and tax number", http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountInactive),
		errors.Is(err, services.ErrDiscountNotStarted),
		errors.Is(err, services.ErrDiscountExpired),
		errors.Is(err, services.ErrDiscountMinOrder),
		errors.Is(err, services.ErrDiscountExhausted),
		errors.Is(err, services.ErrDiscountUserLimit):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_applicable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrPricingInvalidInput), errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrBankTransferAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundExceedsBalance):
		httpx.WriteError(ctx, w, httpx.NewError("refund_exceeds_balance", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundInvalidState), errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNumberExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("order_number_exhausted", "could not allocate an order number, retry shortly", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrPricingUnavailable), errors.Is(err, services.ErrDiscountUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentSessionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_session_failed", "could not open a payment session", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentMissingBankAccount):
		httpx.WriteError(ctx, w, httpx.NewError("bank_account_unavailable", err.Error(), http.StatusServiceUnavailable))
	default:
		writeOrderError(ctx, w, err)
	}
}
