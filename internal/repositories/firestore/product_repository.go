package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
)

const productsCollection = "products"

// ProductRepository reads the catalog projection used for repricing and owns
// the stock decrement applied after a confirmed payment.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: products}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("product repository not initialised")
	}

	products := make(map[string]domain.Product, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		doc, err := r.products.Get(ctx, id)
		if err != nil {
			var repoErr *pfirestore.Error
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		products[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return products, nil
}

// DecrementStock lowers the tracked quantity by the given amount, clamping at
// zero. Products that do not track stock are left untouched.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) (domain.Stock, error) {
	if r == nil || r.provider == nil {
		return domain.Stock{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Stock{}, errors.New("product decrement: id is required")
	}
	if quantity <= 0 {
		return domain.Stock{}, errors.New("product decrement: quantity must be > 0")
	}

	var updated domain.Stock
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}

		if !doc.Stock.TrackStock {
			updated = doc.Stock.toDomain()
			return nil
		}

		remaining := doc.Stock.Quantity - quantity
		if remaining < 0 {
			remaining = 0
		}
		doc.Stock.Quantity = remaining
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.Stock.toDomain()
		return nil
	})
	if err != nil {
		return domain.Stock{}, pfirestore.WrapError("products.decrementStock", err)
	}
	return updated, nil
}

// Document structures -------------------------------------------------------

type productDocument struct {
	Name        string               `firestore:"name"`
	SKU         string               `firestore:"sku"`
	ProductType string               `firestore:"productType,omitempty"`
	Price       int64                `firestore:"price"`
	ListPrice   int64                `firestore:"listPrice"`
	Stock       stockDocument        `firestore:"stock"`
	Bundle      []bundleItemDocument `firestore:"bundle,omitempty"`
	UpdatedAt   time.Time            `firestore:"updatedAt"`
}

type stockDocument struct {
	Quantity   int  `firestore:"qty"`
	TrackStock bool `firestore:"trackStock"`
}

func (s stockDocument) toDomain() domain.Stock {
	return domain.Stock{Quantity: s.Quantity, TrackStock: s.TrackStock}
}

func (d productDocument) toDomain(id string) domain.Product {
	bundle := make([]domain.BundleItem, len(d.Bundle))
	for i, b := range d.Bundle {
		bundle[i] = domain.BundleItem{
			ProductRef: b.ProductRef,
			Name:       b.Name,
			SKU:        b.SKU,
			Quantity:   b.Quantity,
		}
	}
	if len(bundle) == 0 {
		bundle = nil
	}
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		SKU:         d.SKU,
		ProductType: d.ProductType,
		Price:       d.Price,
		ListPrice:   d.ListPrice,
		Stock:       d.Stock.toDomain(),
		Bundle:      bundle,
		UpdatedAt:   d.UpdatedAt,
	}
}
