package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/platform/auth"
	"github.com/oakmart/api/internal/services"
)

func newOrdersTestServer(t *testing.T, orders *stubOrderService, payments *stubPaymentService, identity *auth.Identity) *httptest.Server {
	t.Helper()

	handler := NewOrderHandlers(nil, orders, payments)
	r := chi.NewRouter()
	if identity != nil {
		r.Use(identityMiddleware(identity))
	}
	r.Route("/orders", handler.Routes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func customerIdentity() *auth.Identity {
	return &auth.Identity{UID: "user-1", Email: "user@example.com"}
}

func decodeJSONBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	orders := &stubOrderService{order: testOrder()}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	body := `{
		"customer_type": "Individual",
		"items": [{"product_id": "prod_a", "quantity": 2}],
		"payment_method": "BANK_TRANSFER",
		"shipping_address": {"recipient": "Jo Doe", "line1": "Main St 1", "city": "Berlin", "postal_code": "10115", "country": "de"},
		"billing_address": {"recipient": "Jo Doe", "line1": "Main St 1", "city": "Berlin", "postal_code": "10115", "country": "de"},
		"coupon_code": " SAVE5 ",
		"consents": {"terms": true}
	}`

	resp, err := http.Post(server.URL+"/orders/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var payload orderResponse
	decodeJSONBody(t, resp, &payload)
	if payload.Order.OrderNumber != "OM-20260314-ABCDEF" {
		t.Fatalf("unexpected order number %q", payload.Order.OrderNumber)
	}
	if payload.Order.Total != 12500 {
		t.Fatalf("unexpected total %d", payload.Order.Total)
	}

	cmd := orders.createCmd
	if cmd == nil {
		t.Fatal("expected CreateOrder to be called")
	}
	if cmd.UserID != "user-1" {
		t.Fatalf("expected user id from identity, got %q", cmd.UserID)
	}
	if cmd.CustomerType != domain.CustomerTypeIndividual {
		t.Fatalf("expected normalised customer type, got %q", cmd.CustomerType)
	}
	if cmd.PaymentMethod != domain.PaymentMethodBankTransfer {
		t.Fatalf("expected normalised payment method, got %q", cmd.PaymentMethod)
	}
	if cmd.CouponCode != "SAVE5" {
		t.Fatalf("expected trimmed coupon code, got %q", cmd.CouponCode)
	}
	if cmd.ShippingAddr.Country != "DE" {
		t.Fatalf("expected uppercased country, got %q", cmd.ShippingAddr.Country)
	}
	if len(cmd.Items) != 1 || cmd.Items[0].ProductID != "prod_a" || cmd.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", cmd.Items)
	}
}

func TestOrderHandlersCreateOrderRequiresAuth(t *testing.T) {
	orders := &stubOrderService{}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, nil)

	resp, err := http.Post(server.URL+"/orders/", "application/json", strings.NewReader(`{"items":[{"product_id":"p","quantity":1}]}`))
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if orders.createCmd != nil {
		t.Fatal("service must not be called without an identity")
	}
}

func TestOrderHandlersCreateOrderRejectsEmptyItems(t *testing.T) {
	server := newOrdersTestServer(t, &stubOrderService{}, &stubPaymentService{}, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/", "application/json", strings.NewReader(`{"items":[]}`))
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrderHandlersCreateOrderMapsOutOfStock(t *testing.T) {
	orders := &stubOrderService{err: &services.OutOfStockError{ProductID: "prod_a", ProductName: "Widget", Requested: 3, Available: 1}}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/", "application/json", strings.NewReader(`{"items":[{"product_id":"prod_a","quantity":3}]}`))
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var envelope map[string]any
	decodeJSONBody(t, resp, &envelope)
	if envelope["error"] != "out_of_stock" {
		t.Fatalf("unexpected error code %v", envelope["error"])
	}
	if envelope["product_id"] != "prod_a" {
		t.Fatalf("expected product detail, got %+v", envelope)
	}
}

func TestOrderHandlersCreateOrderMapsNumberExhaustion(t *testing.T) {
	orders := &stubOrderService{err: services.ErrOrderNumberExhausted}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/", "application/json", strings.NewReader(`{"items":[{"product_id":"p","quantity":1}]}`))
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestOrderHandlersListOrdersParsesFilters(t *testing.T) {
	orders := &stubOrderService{page: domain.CursorPage[domain.Order]{
		Items:         []domain.Order{testOrder()},
		NextPageToken: "next-token",
	}}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Get(server.URL + "/orders/?status=Pending,confirmed&page_size=250&created_after=2026-03-01T00:00:00Z")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload orderListResponse
	decodeJSONBody(t, resp, &payload)
	if len(payload.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(payload.Items))
	}
	if payload.NextPageToken != "next-token" {
		t.Fatalf("unexpected next page token %q", payload.NextPageToken)
	}

	filter := orders.listFilter
	if filter == nil {
		t.Fatal("expected ListOrders to be called")
	}
	if filter.UserID != "user-1" {
		t.Fatalf("list must be scoped to the caller, got %q", filter.UserID)
	}
	if len(filter.Status) != 2 || filter.Status[0] != "pending" || filter.Status[1] != "confirmed" {
		t.Fatalf("unexpected status filter %v", filter.Status)
	}
	if filter.Pagination.PageSize != maxOrderPageSize {
		t.Fatalf("expected page size clamped to %d, got %d", maxOrderPageSize, filter.Pagination.PageSize)
	}
	if filter.DateRange.From == nil || !filter.DateRange.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_after bound %v", filter.DateRange.From)
	}
}

func TestOrderHandlersListOrdersRejectsBadTimestamp(t *testing.T) {
	server := newOrdersTestServer(t, &stubOrderService{}, &stubPaymentService{}, customerIdentity())

	resp, err := http.Get(server.URL + "/orders/?created_after=yesterday")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	orders := &stubOrderService{order: testOrder()}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Get(server.URL + "/orders/ord_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload orderResponse
	decodeJSONBody(t, resp, &payload)
	if payload.Order.ID != "ord_1" {
		t.Fatalf("unexpected order id %q", payload.Order.ID)
	}

	if orders.query == nil || orders.query.OrderID != "ord_1" || orders.query.UserID != "user-1" {
		t.Fatalf("unexpected query %+v", orders.query)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	orders := &stubOrderService{err: services.ErrOrderNotFound}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Get(server.URL + "/orders/ord_missing")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	cancelled := testOrder()
	cancelled.Status = domain.OrderStatusCancelled
	orders := &stubOrderService{order: cancelled}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/ord_1:cancel", "application/json", strings.NewReader(`{"reason":"changed my mind"}`))
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload orderResponse
	decodeJSONBody(t, resp, &payload)
	if payload.Order.Status != string(domain.OrderStatusCancelled) {
		t.Fatalf("unexpected status %q", payload.Order.Status)
	}

	cmd := orders.cancelCmd
	if cmd == nil {
		t.Fatal("expected CancelOrder to be called")
	}
	if cmd.OrderID != "ord_1" || cmd.UserID != "user-1" || cmd.Reason != "changed my mind" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestOrderHandlersCancelOrderAllowsEmptyBody(t *testing.T) {
	orders := &stubOrderService{order: testOrder()}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/ord_1:cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if orders.cancelCmd == nil || orders.cancelCmd.Reason != "" {
		t.Fatalf("expected empty reason, got %+v", orders.cancelCmd)
	}
}

func TestOrderHandlersCancelOrderInvalidState(t *testing.T) {
	orders := &stubOrderService{err: services.ErrOrderInvalidState}
	server := newOrdersTestServer(t, orders, &stubPaymentService{}, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/ord_1:cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestOrderHandlersInitiatePaymentBankTransfer(t *testing.T) {
	deadline := time.Date(2026, 3, 19, 9, 30, 0, 0, time.UTC)
	payments := &stubPaymentService{instructions: services.PaymentInstructions{
		Method: domain.PaymentMethodBankTransfer,
		BankTransfer: &services.BankTransferInstructions{
			Account:   "DE02 1203 0000 0000 2020 51",
			Currency:  "EUR",
			Reference: "OM-20260314-ABCDEF",
			Amount:    12500,
			Deadline:  deadline,
			Language:  "de",
			Text:      "Bitte überweisen Sie 125.00 EUR",
		},
	}}
	server := newOrdersTestServer(t, &stubOrderService{}, payments, customerIdentity())

	req, err := http.NewRequest(http.MethodPost, server.URL+"/orders/ord_1/payment", strings.NewReader(`{"locale":"de-DE"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload paymentInstructionsPayload
	decodeJSONBody(t, resp, &payload)
	if payload.Method != string(domain.PaymentMethodBankTransfer) {
		t.Fatalf("unexpected method %q", payload.Method)
	}
	if payload.BankTransfer == nil || payload.BankTransfer.Reference != "OM-20260314-ABCDEF" {
		t.Fatalf("unexpected bank transfer block %+v", payload.BankTransfer)
	}
	if payload.BankTransfer.Language != "de" {
		t.Fatalf("unexpected language %q", payload.BankTransfer.Language)
	}

	cmd := payments.initiateCmd
	if cmd == nil || cmd.OrderID != "ord_1" || cmd.UserID != "user-1" || cmd.Locale != "de-DE" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestOrderHandlersInitiatePaymentUsesAcceptLanguageHeader(t *testing.T) {
	payments := &stubPaymentService{instructions: services.PaymentInstructions{Method: domain.PaymentMethodHosted, RedirectURL: "https://pay.example.com/s/1"}}
	server := newOrdersTestServer(t, &stubOrderService{}, payments, customerIdentity())

	req, err := http.NewRequest(http.MethodPost, server.URL+"/orders/ord_1/payment", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Accept-Language", "tr-TR,tr;q=0.9")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payments.initiateCmd == nil || payments.initiateCmd.Locale != "tr-TR,tr;q=0.9" {
		t.Fatalf("expected header locale, got %+v", payments.initiateCmd)
	}
}

func TestOrderHandlersInitiatePaymentSessionFailure(t *testing.T) {
	payments := &stubPaymentService{err: services.ErrPaymentSessionFailed}
	server := newOrdersTestServer(t, &stubOrderService{}, payments, customerIdentity())

	resp, err := http.Post(server.URL+"/orders/ord_1/payment", "application/json", nil)
	if err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestOrderHandlersGetPaymentStatus(t *testing.T) {
	payments := &stubPaymentService{view: services.PaymentStatusView{
		OrderNumber:  "OM-20260314-ABCDEF",
		Status:       domain.PaymentStatusCompleted,
		Method:       domain.PaymentMethodHosted,
		Amount:       12500,
		Currency:     "EUR",
		RefundAmount: 4000,
	}}
	server := newOrdersTestServer(t, &stubOrderService{}, payments, customerIdentity())

	resp, err := http.Get(server.URL + "/orders/ord_1/payment")
	if err != nil {
		t.Fatalf("get payment status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload paymentStatusPayload
	decodeJSONBody(t, resp, &payload)
	if payload.Status != string(domain.PaymentStatusCompleted) {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.RefundAmount != 4000 {
		t.Fatalf("unexpected refund amount %d", payload.RefundAmount)
	}
	if payments.statusQuery == nil || payments.statusQuery.UserID != "user-1" {
		t.Fatalf("unexpected query %+v", payments.statusQuery)
	}
}
