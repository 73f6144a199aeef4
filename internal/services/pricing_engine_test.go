package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/oakmart/api/internal/domain"
)

func testPricingEngine(t *testing.T, products *stubProductRepository, discounts *stubDiscountService, cfg PricingConfig) PricingService {
	t.Helper()
	if discounts == nil {
		discounts = &stubDiscountService{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	svc, err := NewPricingEngine(PricingEngineDeps{
		Products:  products,
		Discounts: discounts,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return svc
}

func TestPricingEngine_PriceCart_Totals(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:    "prod_a",
		Name:  "Widget",
		SKU:   "WID-1",
		Price: 5000,
		Stock: domain.Stock{Quantity: 10, TrackStock: true},
	})
	svc := testPricingEngine(t, products, nil, PricingConfig{ShippingFee: 2500, FreeShippingOver: 20000})

	priced, err := svc.PriceCart(context.Background(), PriceCartCommand{
		UserID: "user-1",
		Items:  []CartLine{{ProductID: "prod_a", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PriceCart returned error: %v", err)
	}
	if priced.Subtotal != 10000 {
		t.Fatalf("expected subtotal 10000 got %d", priced.Subtotal)
	}
	if priced.ShippingCost != 2500 {
		t.Fatalf("expected shipping 2500 got %d", priced.ShippingCost)
	}
	if priced.TotalAmount != 12500 {
		t.Fatalf("expected total 12500 got %d", priced.TotalAmount)
	}
	if priced.TotalAmount != priced.Subtotal+priced.ShippingCost-priced.DiscountAmount {
		t.Fatalf("total invariant violated: %+v", priced)
	}
	if len(priced.Items) != 1 || priced.Items[0].UnitPrice != 5000 || priced.Items[0].Total != 10000 {
		t.Fatalf("unexpected priced items %+v", priced.Items)
	}
}

func TestPricingEngine_PriceCart_DiscountApplied(t *testing.T) {
	products := newStubProductRepository(domain.Product{ID: "prod_a", Name: "Widget", Price: 5000})
	discounts := &stubDiscountService{
		snapshot: &DiscountSnapshot{
			SourceType: domain.DiscountSourceCoupon,
			Code:       "SAVE10",
			Type:       domain.DiscountTypePercentage,
			Value:      10,
			Amount:     1000,
		},
	}
	svc := testPricingEngine(t, products, discounts, PricingConfig{ShippingFee: 2500, FreeShippingOver: 20000})

	priced, err := svc.PriceCart(context.Background(), PriceCartCommand{
		UserID:     "user-1",
		Items:      []CartLine{{ProductID: "prod_a", Quantity: 2}},
		CouponCode: "SAVE10",
	})
	if err != nil {
		t.Fatalf("PriceCart returned error: %v", err)
	}
	if priced.DiscountAmount != 1000 {
		t.Fatalf("expected discount 1000 got %d", priced.DiscountAmount)
	}
	if priced.TotalAmount != 11500 {
		t.Fatalf("expected total 11500 got %d", priced.TotalAmount)
	}
	if discounts.lastCmd.Subtotal != 10000 {
		t.Fatalf("resolver saw wrong subtotal %d", discounts.lastCmd.Subtotal)
	}
	if discounts.lastCmd.CouponCode != "SAVE10" {
		t.Fatalf("resolver saw wrong code %q", discounts.lastCmd.CouponCode)
	}
}

func TestPricingEngine_PriceCart_FreeShippingBoundary(t *testing.T) {
	products := newStubProductRepository(domain.Product{ID: "prod_a", Name: "Widget", Price: 1})
	svc := testPricingEngine(t, products, nil, PricingConfig{ShippingFee: 25, FreeShippingOver: 200})

	below, err := svc.PriceCart(context.Background(), PriceCartCommand{
		Items: []CartLine{{ProductID: "prod_a", Quantity: 199}},
	})
	if err != nil {
		t.Fatalf("PriceCart returned error: %v", err)
	}
	if below.ShippingCost != 25 {
		t.Fatalf("expected flat fee below threshold, got %d", below.ShippingCost)
	}

	at, err := svc.PriceCart(context.Background(), PriceCartCommand{
		Items: []CartLine{{ProductID: "prod_a", Quantity: 200}},
	})
	if err != nil {
		t.Fatalf("PriceCart returned error: %v", err)
	}
	if at.ShippingCost != 0 {
		t.Fatalf("expected free shipping at threshold, got %d", at.ShippingCost)
	}
}

func TestPricingEngine_PriceCart_OutOfStock(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:    "prod_a",
		Name:  "Widget",
		Price: 100,
		Stock: domain.Stock{Quantity: 1, TrackStock: true},
	})
	svc := testPricingEngine(t, products, nil, PricingConfig{})

	_, err := svc.PriceCart(context.Background(), PriceCartCommand{
		Items: []CartLine{{ProductID: "prod_a", Quantity: 3}},
	})
	if !errors.Is(err, ErrPricingOutOfStock) {
		t.Fatalf("expected ErrPricingOutOfStock got %v", err)
	}
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("expected OutOfStockError got %T", err)
	}
	if oos.ProductName != "Widget" || oos.Requested != 3 || oos.Available != 1 {
		t.Fatalf("unexpected out of stock detail %+v", oos)
	}
}

func TestPricingEngine_PriceCart_UntrackedStockNeverBlocks(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:    "prod_a",
		Name:  "Made to order",
		Price: 100,
		Stock: domain.Stock{Quantity: 0, TrackStock: false},
	})
	svc := testPricingEngine(t, products, nil, PricingConfig{})

	if _, err := svc.PriceCart(context.Background(), PriceCartCommand{
		Items: []CartLine{{ProductID: "prod_a", Quantity: 50}},
	}); err != nil {
		t.Fatalf("PriceCart returned error: %v", err)
	}
}

func TestPricingEngine_PriceCart_BusinessBillingFields(t *testing.T) {
	products := newStubProductRepository(domain.Product{ID: "prod_a", Name: "Widget", Price: 100})
	svc := testPricingEngine(t, products, nil, PricingConfig{})

	_, err := svc.PriceCart(context.Background(), PriceCartCommand{
		CustomerType: domain.CustomerTypeBusiness,
		Items:        []CartLine{{ProductID: "prod_a", Quantity: 1}},
		BillingAddr:  Address{CompanyName: "ACME GmbH"},
	})
	if !errors.Is(err, ErrPricingMissingBillingFields) {
		t.Fatalf("expected ErrPricingMissingBillingFields got %v", err)
	}

	if _, err := svc.PriceCart(context.Background(), PriceCartCommand{
		CustomerType: domain.CustomerTypeBusiness,
		Items:        []CartLine{{ProductID: "prod_a", Quantity: 1}},
		BillingAddr:  Address{CompanyName: "ACME GmbH", TaxNumber: "DE123456789"},
	}); err != nil {
		t.Fatalf("PriceCart with complete billing returned error: %v", err)
	}
}

func TestPricingEngine_PriceCart_UnknownProduct(t *testing.T) {
	products := newStubProductRepository()
	svc := testPricingEngine(t, products, nil, PricingConfig{})

	_, err := svc.PriceCart(context.Background(), PriceCartCommand{
		Items: []CartLine{{ProductID: "prod_missing", Quantity: 1}},
	})
	if !errors.Is(err, ErrPricingProductNotFound) {
		t.Fatalf("expected ErrPricingProductNotFound got %v", err)
	}
}

func TestPricingEngine_PriceCart_InvalidInput(t *testing.T) {
	products := newStubProductRepository()
	svc := testPricingEngine(t, products, nil, PricingConfig{})

	if _, err := svc.PriceCart(context.Background(), PriceCartCommand{}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for empty cart got %v", err)
	}
	if _, err := svc.PriceCart(context.Background(), PriceCartCommand{
		Items: []CartLine{{ProductID: "prod_a", Quantity: 0}},
	}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for zero quantity got %v", err)
	}
}
