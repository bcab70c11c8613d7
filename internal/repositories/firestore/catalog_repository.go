package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/glowmart/api/internal/domain"
	pfirestore "github.com/glowmart/api/internal/platform/firestore"
)

const (
	categoriesCollection = "categories"
	brandsCollection     = "brands"
	skinTypesCollection  = "skinTypes"
)

// CatalogRepository reads the flat lookup collections that back product
// browse filters. These collections are tiny and fetched whole.
type CatalogRepository struct {
	categories *pfirestore.BaseRepository[lookupDocument]
	brands     *pfirestore.BaseRepository[lookupDocument]
	skinTypes  *pfirestore.BaseRepository[lookupDocument]
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		categories: pfirestore.NewBaseRepository[lookupDocument](provider, categoriesCollection),
		brands:     pfirestore.NewBaseRepository[lookupDocument](provider, brandsCollection),
		skinTypes:  pfirestore.NewBaseRepository[lookupDocument](provider, skinTypesCollection),
	}, nil
}

// ListCategories returns all categories ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.listLookup(ctx, r.categories)
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, len(docs))
	for i, doc := range docs {
		categories[i] = domain.Category(doc)
	}
	return categories, nil
}

// ListBrands returns all brands ordered by name.
func (r *CatalogRepository) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	docs, err := r.listLookup(ctx, r.brands)
	if err != nil {
		return nil, err
	}
	brands := make([]domain.Brand, len(docs))
	for i, doc := range docs {
		brands[i] = domain.Brand(doc)
	}
	return brands, nil
}

// ListSkinTypes returns all skin types ordered by name.
func (r *CatalogRepository) ListSkinTypes(ctx context.Context) ([]domain.SkinType, error) {
	docs, err := r.listLookup(ctx, r.skinTypes)
	if err != nil {
		return nil, err
	}
	skinTypes := make([]domain.SkinType, len(docs))
	for i, doc := range docs {
		skinTypes[i] = domain.SkinType(doc)
	}
	return skinTypes, nil
}

type lookupEntry struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *CatalogRepository) listLookup(ctx context.Context, repo *pfirestore.BaseRepository[lookupDocument]) ([]lookupEntry, error) {
	if r == nil || repo == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]lookupEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, lookupEntry{
			ID:        doc.ID,
			Name:      strings.TrimSpace(doc.Data.Name),
			CreatedAt: doc.Data.CreatedAt,
			UpdatedAt: doc.Data.UpdatedAt,
		})
	}
	return entries, nil
}

type lookupDocument struct {
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}
