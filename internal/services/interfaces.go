package services

import (
	"context"
	"io"
	"time"

	domain "github.com/glowmart/api/internal/domain"
)

// PlaceOrderLine is one requested product/quantity pair for checkout.
type PlaceOrderLine struct {
	ProductRef string
	Quantity   int
}

// PlaceOrderCommand captures the checkout request for an account.
type PlaceOrderCommand struct {
	AccountRef string
	Lines      []PlaceOrderLine
}

// PlaceOrderResult returns the persisted pending order together with the
// hosted gateway URL the client must redirect the shopper to.
type PlaceOrderResult struct {
	Order      domain.Order
	PaymentURL string
	ExpiresAt  time.Time
}

// ConfirmPaymentCommand carries the gateway callback parameters.
type ConfirmPaymentCommand struct {
	OrderID      string
	ResponseCode string
	// Params holds the raw callback query values for signature verification.
	Params map[string]string
	// Signature is the gateway-provided secure hash, when present.
	Signature string
}

// ConfirmDeliveryCommand carries the delivery evidence upload.
type ConfirmDeliveryCommand struct {
	OrderID     string
	FileName    string
	ContentType string
	Photo       io.Reader
}

// CancelOrderResult reports the canceled order and refunded amount.
type CancelOrderResult struct {
	Order        domain.Order
	RefundAmount int64
}

// OrderService drives the order lifecycle from checkout to delivery or cancellation.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error)
	MarkShipping(ctx context.Context, orderID string) (domain.Order, error)
	ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (CancelOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListAccountOrders(ctx context.Context, accountRef string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListFulfillableOrders(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// RegisterAccountCommand creates a new storefront account.
type RegisterAccountCommand struct {
	ID          string
	Email       string
	DisplayName string
	Role        domain.AccountRole
	Locale      string
}

// AccountService manages storefront accounts and their balances.
type AccountService interface {
	Register(ctx context.Context, cmd RegisterAccountCommand) (domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
	AddBalance(ctx context.Context, accountID string, amount int64) (domain.Account, error)
}

// ProductListQuery narrows product browsing.
type ProductListQuery struct {
	CategoryRef string
	BrandRef    string
	SkinTypeRef string
	Pagination  domain.Pagination
}

// SubmitFeedbackCommand carries a new product review. Body may contain HTML
// and is sanitised before persistence.
type SubmitFeedbackCommand struct {
	ProductRef string
	AccountRef string
	Rating     int
	Body       string
}

// CatalogService exposes product browsing and customer feedback.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[domain.Product], error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	ListSkinTypes(ctx context.Context) ([]domain.SkinType, error)
	SubmitFeedback(ctx context.Context, cmd SubmitFeedbackCommand) (domain.Feedback, error)
	ListProductFeedback(ctx context.Context, productRef string, pager domain.Pagination) (domain.CursorPage[domain.Feedback], error)
}

// SystemService surfaces dependency health for readiness probes.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
}
