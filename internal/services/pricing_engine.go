package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals the caller provided invalid cart lines.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductNotFound indicates a cart line references an unknown product.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrPricingOutOfStock indicates a requested quantity exceeds available stock.
	ErrPricingOutOfStock = errors.New("pricing: out of stock")
	// ErrPricingMissingBillingFields indicates a business order lacks company name or tax number.
	ErrPricingMissingBillingFields = errors.New("pricing: missing business billing fields")
	// ErrPricingUnavailable indicates catalog dependencies are unavailable.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

// OutOfStockError names the product that could not be fulfilled.
type OutOfStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("pricing: out of stock: %s (requested %d, available %d)", e.ProductName, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrPricingOutOfStock
}

// PricingConfig carries the injected checkout parameters. Thresholds are
// configuration, never hardcoded.
type PricingConfig struct {
	Currency         string
	ShippingFee      int64
	FreeShippingOver int64
}

// PricingEngineDeps wires the collaborators required by the pricing engine.
type PricingEngineDeps struct {
	Products  repositories.ProductRepository
	Discounts DiscountService
	Config    PricingConfig
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	products  repositories.ProductRepository
	discounts DiscountService
	config    PricingConfig
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine constructs a PricingService validating required dependencies.
func NewPricingEngine(deps PricingEngineDeps) (PricingService, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing engine: product repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("pricing engine: discount service is required")
	}
	if strings.TrimSpace(deps.Config.Currency) == "" {
		return nil, errors.New("pricing engine: currency is required")
	}
	if deps.Config.ShippingFee < 0 || deps.Config.FreeShippingOver < 0 {
		return nil, errors.New("pricing engine: shipping configuration must not be negative")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingEngine{
		products:  deps.Products,
		discounts: deps.Discounts,
		config:    deps.Config,
		logger:    logger,
	}, nil
}

// PriceCart reprices every line from the catalog, validates stock and business
// billing data, resolves the discount source, and computes the totals. Client
// supplied prices are never trusted.
func (e *pricingEngine) PriceCart(ctx context.Context, cmd PriceCartCommand) (PricedCart, error) {
	if len(cmd.Items) == 0 {
		return PricedCart{}, fmt.Errorf("%w: at least one item is required", ErrPricingInvalidInput)
	}
	for _, line := range cmd.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return PricedCart{}, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
		}
		if line.Quantity <= 0 {
			return PricedCart{}, fmt.Errorf("%w: quantity must be positive", ErrPricingInvalidInput)
		}
	}

	if cmd.CustomerType == domain.CustomerTypeBusiness {
		if strings.TrimSpace(cmd.BillingAddr.CompanyName) == "" || strings.TrimSpace(cmd.BillingAddr.TaxNumber) == "" {
			return PricedCart{}, ErrPricingMissingBillingFields
		}
	}

	items, subtotal, err := e.priceLines(ctx, cmd.Items)
	if err != nil {
		return PricedCart{}, err
	}

	discount, err := e.discounts.Resolve(ctx, ResolveDiscountCommand{
		UserID:     cmd.UserID,
		Subtotal:   subtotal,
		CouponCode: cmd.CouponCode,
		CampaignID: cmd.CampaignID,
	})
	if err != nil {
		return PricedCart{}, err
	}

	var discountAmount int64
	if discount != nil {
		discountAmount = discount.Amount
	}

	shipping := e.shippingCost(subtotal)
	total := subtotal + shipping - discountAmount
	if total < 0 {
		total = 0
	}

	return PricedCart{
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		ShippingCost:   shipping,
		TotalAmount:    total,
		Currency:       strings.ToUpper(e.config.Currency),
		Discount:       discount,
	}, nil
}

func (e *pricingEngine) priceLines(ctx context.Context, lines []CartLine) ([]OrderItem, int64, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, strings.TrimSpace(line.ProductID))
	}

	catalog, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, e.mapRepositoryError(err)
	}

	items := make([]OrderItem, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		product, ok := catalog[productID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrPricingProductNotFound, productID)
		}
		if product.Stock.TrackStock && line.Quantity > product.Stock.Quantity {
			return nil, 0, &OutOfStockError{
				ProductID:   productID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Stock.Quantity,
			}
		}

		item := OrderItem{
			ProductRef:    productID,
			Name:          product.Name,
			SKU:           product.SKU,
			ProductType:   product.ProductType,
			UnitPrice:     product.Price,
			OriginalPrice: product.ListPrice,
			Quantity:      line.Quantity,
			Total:         product.Price * int64(line.Quantity),
			BundleItems:   cloneBundleItems(product.Bundle),
		}
		if item.OriginalPrice == 0 {
			item.OriginalPrice = product.Price
		}
		items = append(items, item)
		subtotal += item.Total
	}

	return items, subtotal, nil
}

// shippingCost is a two-tier step function: free at the configured threshold,
// the flat fee below it.
func (e *pricingEngine) shippingCost(subtotal int64) int64 {
	if e.config.FreeShippingOver > 0 && subtotal >= e.config.FreeShippingOver {
		return 0
	}
	return e.config.ShippingFee
}

func cloneBundleItems(items []domain.BundleItem) []domain.BundleItem {
	if len(items) == 0 {
		return nil
	}
	cloned := make([]domain.BundleItem, len(items))
	copy(cloned, items)
	return cloned
}

func (e *pricingEngine) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPricingProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
}
