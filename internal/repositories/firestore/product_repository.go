package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/glowmart/api/internal/domain"
	pfirestore "github.com/glowmart/api/internal/platform/firestore"
	"github.com/glowmart/api/internal/platform/pagination"
	"github.com/glowmart/api/internal/repositories"
)

const (
	productsCollection = "products"

	defaultProductPageSize = 20
	maxProductPageSize     = 100
)

// ProductRepository persists catalog products.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a ProductRepository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// Insert creates a new product document, failing on ID collisions.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, errors.New("product insert: id is required")
	}

	doc := newProductDocument(product)
	ref, err := r.products.DocumentRef(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Product{}, pfirestore.WrapError("products.insert", err)
	}
	return doc.toDomain(id), nil
}

// FindByID fetches a product by document ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of products ordered by name, optionally filtered by
// category, brand, or skin type references.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultProductPageSize
	}
	if pageSize > maxProductPageSize {
		pageSize = maxProductPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if ref := strings.TrimSpace(filter.CategoryRef); ref != "" {
			q = q.Where("categoryRef", "==", ref)
		}
		if ref := strings.TrimSpace(filter.BrandRef); ref != "" {
			q = q.Where("brandRef", "==", ref)
		}
		if ref := strings.TrimSpace(filter.SkinTypeRef); ref != "" {
			q = q.Where("skinTypeRef", "==", ref)
		}
		q = q.OrderBy("name", firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if len(products) > pageSize {
		products = products[:pageSize]
		last := products[len(products)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{StartAfter: []any{last.Name}})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
	}

	return domain.CursorPage[domain.Product]{Items: products, NextPageToken: nextToken}, nil
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	Stock       int       `firestore:"stock"`
	CategoryRef string    `firestore:"categoryRef,omitempty"`
	BrandRef    string    `firestore:"brandRef,omitempty"`
	SkinTypeRef string    `firestore:"skinTypeRef,omitempty"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:        strings.TrimSpace(product.Name),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		Stock:       product.Stock,
		CategoryRef: strings.TrimSpace(product.CategoryRef),
		BrandRef:    strings.TrimSpace(product.BrandRef),
		SkinTypeRef: strings.TrimSpace(product.SkinTypeRef),
		ImageURL:    strings.TrimSpace(product.ImageURL),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Stock:       d.Stock,
		CategoryRef: d.CategoryRef,
		BrandRef:    d.BrandRef,
		SkinTypeRef: d.SkinTypeRef,
		ImageURL:    d.ImageURL,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
