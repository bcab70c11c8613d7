package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// AccountRole enumerates the roles an account may hold.
type AccountRole string

const (
	// AccountRoleCustomer is the default role for storefront shoppers.
	AccountRoleCustomer AccountRole = "customer"
	// AccountRoleShipper marks delivery personnel.
	AccountRoleShipper AccountRole = "shipper"
	// AccountRoleAdmin marks back-office staff.
	AccountRoleAdmin AccountRole = "admin"
)

// Account represents a storefront account with a stored-value balance.
// Balance is kept in minor currency units.
type Account struct {
	ID          string
	Email       string
	DisplayName string
	Balance     int64
	Role        AccountRole
	Locale      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a sellable catalog item. Price is in minor currency units.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       int64
	Stock       int
	CategoryRef string
	BrandRef    string
	SkinTypeRef string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderStatus describes the lifecycle state of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state awaiting gateway payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid means the gateway confirmed payment and stock was committed.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipping means a shipper picked the order up.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered means delivery was confirmed with photo evidence.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled means a paid order was canceled and refunded.
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderItem is a line item snapshot taken at order creation. Name and unit
// price are copied from the product so later catalog edits cannot change
// historical orders.
type OrderItem struct {
	ProductRef  string
	ProductName string
	UnitPrice   int64
	Quantity    int
}

// Order aggregates the purchase state for one checkout.
type Order struct {
	ID               string
	AccountRef       string
	Items            []OrderItem
	TotalAmount      int64
	Status           OrderStatus
	DeliveryImageURL *string
	RefundAmount     int64
	PaidAt           *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CanceledAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Category groups products for browsing.
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Brand identifies a product manufacturer.
type Brand struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SkinType tags products with the skin profile they target.
type SkinType struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Feedback is a customer review attached to a product. Body is stored
// sanitised; raw submitted HTML never reaches persistence.
type Feedback struct {
	ID         string
	ProductRef string
	AccountRef string
	Rating     int
	Body       string
	CreatedAt  time.Time
}
