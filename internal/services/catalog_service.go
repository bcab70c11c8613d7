package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/repositories"
)

const (
	eventFeedbackSubmitted = "catalog.feedback.submitted"

	maxFeedbackBodyLength = 4000
	minFeedbackRating     = 1
	maxFeedbackRating     = 5
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
)

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Catalog     repositories.CatalogRepository
	Feedback    repositories.FeedbackRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	catalog   repositories.CatalogRepository
	feedback  repositories.FeedbackRepository
	sanitizer *bluemonday.Policy
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	if deps.Feedback == nil {
		return nil, errors.New("catalog service: feedback repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products:  deps.Products,
		catalog:   deps.Catalog,
		feedback:  deps.Feedback,
		sanitizer: bluemonday.UGCPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[domain.Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		CategoryRef: strings.TrimSpace(query.CategoryRef),
		BrandRef:    strings.TrimSpace(query.BrandRef),
		SkinTypeRef: strings.TrimSpace(query.SkinTypeRef),
		Pagination:  query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return categories, nil
}

func (s *catalogService) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	brands, err := s.catalog.ListBrands(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return brands, nil
}

func (s *catalogService) ListSkinTypes(ctx context.Context) ([]domain.SkinType, error) {
	skinTypes, err := s.catalog.ListSkinTypes(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return skinTypes, nil
}

func (s *catalogService) SubmitFeedback(ctx context.Context, cmd SubmitFeedbackCommand) (domain.Feedback, error) {
	productRef := strings.TrimSpace(cmd.ProductRef)
	if productRef == "" {
		return domain.Feedback{}, fmt.Errorf("%w: product ref is required", ErrCatalogInvalidInput)
	}
	accountRef := strings.TrimSpace(cmd.AccountRef)
	if accountRef == "" {
		return domain.Feedback{}, fmt.Errorf("%w: account ref is required", ErrCatalogInvalidInput)
	}
	if cmd.Rating < minFeedbackRating || cmd.Rating > maxFeedbackRating {
		return domain.Feedback{}, fmt.Errorf("%w: rating must be between %d and %d", ErrCatalogInvalidInput, minFeedbackRating, maxFeedbackRating)
	}

	body := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Body))
	if body == "" {
		return domain.Feedback{}, fmt.Errorf("%w: feedback body is required", ErrCatalogInvalidInput)
	}
	if len(body) > maxFeedbackBodyLength {
		return domain.Feedback{}, fmt.Errorf("%w: feedback body exceeds %d characters", ErrCatalogInvalidInput, maxFeedbackBodyLength)
	}

	// Reject feedback for products that do not exist.
	if _, err := s.products.FindByID(ctx, productRef); err != nil {
		return domain.Feedback{}, s.mapRepositoryError(err)
	}

	feedback, err := s.feedback.Insert(ctx, domain.Feedback{
		ID:         s.newID(),
		ProductRef: productRef,
		AccountRef: accountRef,
		Rating:     cmd.Rating,
		Body:       body,
		CreatedAt:  s.clock(),
	})
	if err != nil {
		return domain.Feedback{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventFeedbackSubmitted, map[string]any{
		"feedbackId": feedback.ID,
		"productRef": productRef,
		"rating":     cmd.Rating,
	})
	return feedback, nil
}

func (s *catalogService) ListProductFeedback(ctx context.Context, productRef string, pager domain.Pagination) (domain.CursorPage[domain.Feedback], error) {
	productRef = strings.TrimSpace(productRef)
	if productRef == "" {
		return domain.CursorPage[domain.Feedback]{}, fmt.Errorf("%w: product ref is required", ErrCatalogInvalidInput)
	}
	page, err := s.feedback.ListByProduct(ctx, productRef, pager)
	if err != nil {
		return domain.CursorPage[domain.Feedback]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrCatalogNotFound, repoErr.Error())
	}
	return err
}
