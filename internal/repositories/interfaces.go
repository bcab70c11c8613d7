package repositories

import (
	"context"
	"time"

	domain "github.com/glowmart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// AccountRepository persists storefront accounts and their stored-value balances.
type AccountRepository interface {
	Insert(ctx context.Context, account domain.Account) (domain.Account, error)
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	// Credit atomically adds amount (minor units, must be > 0) to the balance.
	Credit(ctx context.Context, accountID string, amount int64, now time.Time) (domain.Account, error)
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	CategoryRef string
	BrandRef    string
	SkinTypeRef string
	Pagination  domain.Pagination
}

// ProductRepository persists catalog products. Stock mutations happen only
// through OrderRepository transactions.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) (domain.Product, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// PlaceOrderLine is one requested product/quantity pair for order placement.
type PlaceOrderLine struct {
	ProductRef string
	Quantity   int
}

// PlaceOrderRequest captures everything needed to persist a pending order.
type PlaceOrderRequest struct {
	OrderID    string
	AccountRef string
	Lines      []PlaceOrderLine
	Now        time.Time
}

// CancelOrderRequest identifies the order to cancel and where the refund halves go.
type CancelOrderRequest struct {
	OrderID           string
	SettlementAccount string
	Now               time.Time
}

// CancelOrderResult reports the canceled order and the refunded amount.
type CancelOrderResult struct {
	Order        domain.Order
	RefundAmount int64
}

// OrderRepository owns order persistence and the transactional workflows that
// span orders, products, and accounts.
type OrderRepository interface {
	// Place validates account and stock inside one transaction, snapshots the
	// line items, and writes the pending order.
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	// MarkPaid flips pending to paid and decrements every line's stock in the
	// same transaction.
	MarkPaid(ctx context.Context, orderID string, now time.Time) (domain.Order, error)
	// MarkShipping flips paid to shipping.
	MarkShipping(ctx context.Context, orderID string, now time.Time) (domain.Order, error)
	// MarkDelivered flips shipping to delivered and records the photo URL.
	MarkDelivered(ctx context.Context, orderID string, imageURL string, now time.Time) (domain.Order, error)
	// Cancel flips paid to canceled, restores stock, and credits half the order
	// total to the owner and half to the settlement account, all in one
	// transaction.
	Cancel(ctx context.Context, req CancelOrderRequest) (CancelOrderResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByAccount(ctx context.Context, accountRef string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	// ListFulfillable returns orders in paid, shipping, or delivered status for
	// the shipper work queue, grouped by status then newest first.
	ListFulfillable(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// CatalogRepository reads the flat lookup collections backing product browse filters.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	ListSkinTypes(ctx context.Context) ([]domain.SkinType, error)
}

// FeedbackRepository persists sanitised product reviews.
type FeedbackRepository interface {
	Insert(ctx context.Context, feedback domain.Feedback) (domain.Feedback, error)
	ListByProduct(ctx context.Context, productRef string, pager domain.Pagination) (domain.CursorPage[domain.Feedback], error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
