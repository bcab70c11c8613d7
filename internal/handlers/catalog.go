package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/platform/auth"
	"github.com/glowmart/api/internal/platform/httpx"
	"github.com/glowmart/api/internal/services"
)

const maxFeedbackRating = 5

type submitFeedbackRequest struct {
	Product string `json:"product"`
	Rating  int    `json:"rating"`
	Body    string `json:"body"`
}

type productPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category,omitempty"`
	Brand       string `json:"brand,omitempty"`
	SkinType    string `json:"skinType,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type lookupPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type lookupListResponse struct {
	Items []lookupPayload `json:"items"`
}

type feedbackPayload struct {
	ID        string `json:"id"`
	Product   string `json:"product"`
	Account   string `json:"account"`
	Rating    int    `json:"rating"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type feedbackResponse struct {
	Feedback feedbackPayload `json:"feedback"`
}

type feedbackListResponse struct {
	Items         []feedbackPayload `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

// CatalogHandlers exposes product browsing, catalog lookups, and feedback.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// ProductRoutes registers the public /product endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

// LookupRoutes registers the public /catalog lookup endpoints.
func (h *CatalogHandlers) LookupRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
	r.Get("/brands", h.listBrands)
	r.Get("/skin-types", h.listSkinTypes)
}

// FeedbackRoutes registers the /feedback endpoints. Reading reviews is
// public; submitting one requires an authenticated customer.
func (h *CatalogHandlers) FeedbackRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/product/{productID}", h.listProductFeedback)
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/", h.submitFeedback)
	})
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	page, err := h.catalog.ListProducts(ctx, services.ProductListQuery{
		CategoryRef: strings.TrimSpace(query.Get("category")),
		BrandRef:    strings.TrimSpace(query.Get("brand")),
		SkinTypeRef: strings.TrimSpace(query.Get("skinType")),
		Pagination:  pager,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]lookupPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, lookupPayload{ID: category.ID, Name: category.Name})
	}
	writeJSONResponse(w, http.StatusOK, lookupListResponse{Items: items})
}

func (h *CatalogHandlers) listBrands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	brands, err := h.catalog.ListBrands(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]lookupPayload, 0, len(brands))
	for _, brand := range brands {
		items = append(items, lookupPayload{ID: brand.ID, Name: brand.Name})
	}
	writeJSONResponse(w, http.StatusOK, lookupListResponse{Items: items})
}

func (h *CatalogHandlers) listSkinTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	skinTypes, err := h.catalog.ListSkinTypes(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]lookupPayload, 0, len(skinTypes))
	for _, skinType := range skinTypes {
		items = append(items, lookupPayload{ID: skinType.ID, Name: skinType.Name})
	}
	writeJSONResponse(w, http.StatusOK, lookupListResponse{Items: items})
}

func (h *CatalogHandlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req submitFeedbackRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product := strings.TrimSpace(req.Product)
	if product == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product is required", http.StatusBadRequest))
		return
	}
	if req.Rating < 1 || req.Rating > maxFeedbackRating {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rating must be between 1 and 5", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "body is required", http.StatusBadRequest))
		return
	}

	feedback, err := h.catalog.SubmitFeedback(ctx, services.SubmitFeedbackCommand{
		ProductRef: product,
		AccountRef: identity.UID,
		Rating:     req.Rating,
		Body:       req.Body,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, feedbackResponse{Feedback: buildFeedbackPayload(feedback)})
}

func (h *CatalogHandlers) listProductFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProductFeedback(ctx, productID, pager)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]feedbackPayload, 0, len(page.Items))
	for _, feedback := range page.Items {
		items = append(items, buildFeedbackPayload(feedback))
	}
	writeJSONResponse(w, http.StatusOK, feedbackListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		Category:    product.CategoryRef,
		Brand:       product.BrandRef,
		SkinType:    product.SkinTypeRef,
		ImageURL:    product.ImageURL,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func buildFeedbackPayload(feedback domain.Feedback) feedbackPayload {
	return feedbackPayload{
		ID:        feedback.ID,
		Product:   feedback.ProductRef,
		Account:   feedback.AccountRef,
		Rating:    feedback.Rating,
		Body:      feedback.Body,
		CreatedAt: formatTime(feedback.CreatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "catalog request invalid", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
