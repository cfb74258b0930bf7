package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	pfirestore "github.com/silkthread/api/internal/platform/firestore"
)

const productsCollection = "products"

// ProductRepository reads and writes catalog records in Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[domain.Product]
	now  func() time.Time
}

// ProductRepositoryOption customises repository construction.
type ProductRepositoryOption func(*ProductRepository)

// WithProductClock injects a custom clock primarily for tests.
func WithProductClock(clock func() time.Time) ProductRepositoryOption {
	return func(r *ProductRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider, opts ...ProductRepositoryOption) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	repo := &ProductRepository{
		base: pfirestore.NewBaseRepository[domain.Product](provider, productsCollection, nil, nil),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	product := doc.Data
	product.ID = doc.ID
	return product, nil
}

// Upsert stores the product, replacing any existing record with the same ID.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	product.UpdatedAt = r.now().UTC()
	if _, err := r.base.Set(ctx, productID, product); err != nil {
		return err
	}
	return nil
}
