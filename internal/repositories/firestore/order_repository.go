package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/glowmart/api/internal/domain"
	pfirestore "github.com/glowmart/api/internal/platform/firestore"
	"github.com/glowmart/api/internal/platform/pagination"
	"github.com/glowmart/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// statusQueueRank orders the shipper work queue: paid first, then shipping,
// then delivered. The rank is stored on every order document so the queue
// can page on it server-side.
func statusQueueRank(status domain.OrderStatus) int {
	switch status {
	case domain.OrderStatusPaid:
		return 1
	case domain.OrderStatusShipping:
		return 2
	case domain.OrderStatusDelivered:
		return 3
	case domain.OrderStatusCanceled:
		return 4
	default:
		return 0
	}
}

// splitRefund halves an order total between the owning account and the
// settlement account. An odd minor unit goes to the owner, so the two shares
// always sum to the refundable amount and the customer is never shorted.
func splitRefund(total int64) (owner, settlement int64) {
	settlement = total / 2
	owner = total - settlement
	return owner, settlement
}

// OrderRepository owns order documents and the transactions that keep orders,
// product stock, and account balances consistent.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	accounts *pfirestore.BaseRepository[accountDocument]
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		accounts: pfirestore.NewBaseRepository[accountDocument](provider, accountsCollection),
	}, nil
}

// Place validates the account and every line's stock inside one transaction,
// snapshots product name and price per line, and writes the pending order.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order place: order id is required")
	}
	accountRef := strings.TrimSpace(req.AccountRef)
	if accountRef == "" {
		return domain.Order{}, errors.New("order place: account ref is required")
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order place: at least one line is required", nil)
	}

	now := req.Now.UTC()
	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		accRef, err := r.accounts.DocumentRef(ctx, accountRef)
		if err != nil {
			return err
		}
		if _, err := tx.Get(accRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorAccountNotFound, fmt.Sprintf("account %s not found", accountRef), err)
			}
			return err
		}

		// All reads happen before the order write.
		items := make([]orderItemDocument, 0, len(req.Lines))
		var total int64
		for _, line := range req.Lines {
			productRef := strings.TrimSpace(line.ProductRef)
			if productRef == "" {
				return repositories.NewOrderError(repositories.OrderErrorProductNotFound, "order place: product ref is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewOrderError(repositories.OrderErrorUnknown, fmt.Sprintf("order place: quantity for %s must be > 0", productRef), nil)
			}
			prodRef, err := r.products.DocumentRef(ctx, productRef)
			if err != nil {
				return err
			}
			snap, err := tx.Get(prodRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", productRef), err)
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", productRef, err)
			}
			if product.Stock < line.Quantity {
				return repositories.NewOrderError(repositories.OrderErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", productRef), nil)
			}
			items = append(items, orderItemDocument{
				ProductRef:  productRef,
				ProductName: product.Name,
				UnitPrice:   product.Price,
				Quantity:    line.Quantity,
			})
			total += product.Price * int64(line.Quantity)
		}

		doc := orderDocument{
			AccountRef:  accountRef,
			Items:       items,
			TotalAmount: total,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		doc.setStatus(domain.OrderStatusPending)
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		placed = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.place", err)
	}
	return placed, nil
}

// MarkPaid flips a pending order to paid and decrements every line's stock in
// the same transaction, so a payment can never commit against missing stock.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order mark paid: order id is required")
	}

	now = now.UTC()
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, doc, err := r.getOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if doc.Status != string(domain.OrderStatusPending) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s is not pending", orderID), nil)
		}

		type stockWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]stockWrite, 0, len(doc.Items))
		for _, item := range doc.Items {
			prodRef, err := r.products.DocumentRef(ctx, item.ProductRef)
			if err != nil {
				return err
			}
			snap, err := tx.Get(prodRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", item.ProductRef), err)
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", item.ProductRef, err)
			}
			if product.Stock < item.Quantity {
				return repositories.NewOrderError(repositories.OrderErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", item.ProductRef), nil)
			}
			product.Stock -= item.Quantity
			product.UpdatedAt = now
			writes = append(writes, stockWrite{ref: prodRef, doc: product})
		}

		for _, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		doc.setStatus(domain.OrderStatusPaid)
		doc.PaidAt = &now
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.markPaid", err)
	}
	return updated, nil
}

// MarkShipping flips a paid order to shipping.
func (r *OrderRepository) MarkShipping(ctx context.Context, orderID string, now time.Time) (domain.Order, error) {
	return r.transition(ctx, "orders.markShipping", orderID, domain.OrderStatusPaid, now, func(doc *orderDocument, at time.Time) {
		doc.setStatus(domain.OrderStatusShipping)
		doc.ShippedAt = &at
	})
}

// MarkDelivered flips a shipping order to delivered and records the photo URL.
func (r *OrderRepository) MarkDelivered(ctx context.Context, orderID string, imageURL string, now time.Time) (domain.Order, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return domain.Order{}, errors.New("order mark delivered: image url is required")
	}
	return r.transition(ctx, "orders.markDelivered", orderID, domain.OrderStatusShipping, now, func(doc *orderDocument, at time.Time) {
		doc.setStatus(domain.OrderStatusDelivered)
		doc.DeliveryImageURL = imageURL
		doc.DeliveredAt = &at
	})
}

func (r *OrderRepository) transition(ctx context.Context, op, orderID string, from domain.OrderStatus, now time.Time, apply func(*orderDocument, time.Time)) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order transition: order id is required")
	}

	now = now.UTC()
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, doc, err := r.getOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if doc.Status != string(from) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s is not %s", orderID, from), nil)
		}
		apply(&doc, now)
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError(op, err)
	}
	return updated, nil
}

// Cancel flips a paid order to canceled, restores every line's stock, and
// credits half the total to the owning account and half to the settlement
// account, all in one transaction.
func (r *OrderRepository) Cancel(ctx context.Context, req repositories.CancelOrderRequest) (repositories.CancelOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.CancelOrderResult{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.CancelOrderResult{}, errors.New("order cancel: order id is required")
	}
	settlementID := strings.TrimSpace(req.SettlementAccount)
	if settlementID == "" {
		return repositories.CancelOrderResult{}, errors.New("order cancel: settlement account is required")
	}

	now := req.Now.UTC()
	var result repositories.CancelOrderResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, doc, err := r.getOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if doc.Status != string(domain.OrderStatusPaid) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s is not paid", orderID), nil)
		}

		ownerShare, settlementShare := splitRefund(doc.TotalAmount)

		type stockWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		stockWrites := make([]stockWrite, 0, len(doc.Items))
		for _, item := range doc.Items {
			prodRef, err := r.products.DocumentRef(ctx, item.ProductRef)
			if err != nil {
				return err
			}
			snap, err := tx.Get(prodRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", item.ProductRef), err)
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", item.ProductRef, err)
			}
			product.Stock += item.Quantity
			product.UpdatedAt = now
			stockWrites = append(stockWrites, stockWrite{ref: prodRef, doc: product})
		}

		ownerRef, err := r.accounts.DocumentRef(ctx, doc.AccountRef)
		if err != nil {
			return err
		}
		ownerSnap, err := tx.Get(ownerRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorAccountNotFound, fmt.Sprintf("account %s not found", doc.AccountRef), err)
			}
			return err
		}
		var owner accountDocument
		if err := ownerSnap.DataTo(&owner); err != nil {
			return fmt.Errorf("decode account %s: %w", doc.AccountRef, err)
		}

		// The settlement account absorbs the retained half of the refund. It
		// may coincide with the owner account in dev environments.
		sameAccount := settlementID == doc.AccountRef
		var settlement accountDocument
		var settlementRef *firestore.DocumentRef
		if !sameAccount {
			settlementRef, err = r.accounts.DocumentRef(ctx, settlementID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(settlementRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorAccountNotFound, fmt.Sprintf("settlement account %s not found", settlementID), err)
				}
				return err
			}
			if err := snap.DataTo(&settlement); err != nil {
				return fmt.Errorf("decode account %s: %w", settlementID, err)
			}
		}

		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		if sameAccount {
			owner.Balance += ownerShare + settlementShare
		} else {
			owner.Balance += ownerShare
			settlement.Balance += settlementShare
			settlement.UpdatedAt = now
			if err := tx.Set(settlementRef, settlement); err != nil {
				return err
			}
		}
		owner.UpdatedAt = now
		if err := tx.Set(ownerRef, owner); err != nil {
			return err
		}

		doc.setStatus(domain.OrderStatusCanceled)
		doc.RefundAmount = ownerShare
		doc.CanceledAt = &now
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		result = repositories.CancelOrderResult{
			Order:        doc.toDomain(orderID),
			RefundAmount: ownerShare,
		}
		return nil
	})
	if err != nil {
		return repositories.CancelOrderResult{}, wrapOrderError("orders.cancel", err)
	}
	return result, nil
}

// FindByID fetches an order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByAccount returns the account's orders, newest first.
func (r *OrderRepository) ListByAccount(ctx context.Context, accountRef string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	accountRef = strings.TrimSpace(accountRef)
	if accountRef == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: account ref is required")
	}

	return r.listOrders(ctx, "orders.listByAccount", pager, func(q firestore.Query) firestore.Query {
		return q.Where("accountRef", "==", accountRef)
	})
}

// ListFulfillable returns orders in paid, shipping, or delivered status for
// the shipper work queue. Paging runs on (statusRank, createdAt), so the
// status grouping holds across pages, not just within one.
func (r *OrderRepository) ListFulfillable(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	const op = "orders.listFulfillable"

	pageSize := clampOrderPageSize(pager.PageSize)
	cursorRank, cursorTime, hasCursor, err := decodeQueueCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
	}

	statuses := []string{
		string(domain.OrderStatusPaid),
		string(domain.OrderStatusShipping),
		string(domain.OrderStatusDelivered),
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "in", statuses).
			OrderBy("statusRank", firestore.Asc).
			OrderBy("createdAt", firestore.Desc)
		if hasCursor {
			q = q.StartAfter(cursorRank, cursorTime)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if len(orders) > pageSize {
		orders = orders[:pageSize]
		last := orders[len(orders)-1]
		nextToken, err = encodeQueueCursor(statusQueueRank(last.Status), last.CreatedAt)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
		}
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

func (r *OrderRepository) listOrders(ctx context.Context, op string, pager domain.Pagination, narrow pfirestore.QueryBuilder) (domain.CursorPage[domain.Order], error) {
	pageSize := clampOrderPageSize(pager.PageSize)

	cursorTime, hasCursor, err := decodeTimeCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = narrow(q).OrderBy("createdAt", firestore.Desc)
		if hasCursor {
			q = q.StartAfter(cursorTime)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if len(orders) > pageSize {
		orders = orders[:pageSize]
		last := orders[len(orders)-1]
		nextToken, err = encodeTimeCursor(last.CreatedAt)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
		}
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

func clampOrderPageSize(size int) int {
	if size <= 0 {
		return defaultOrderPageSize
	}
	if size > maxOrderPageSize {
		return maxOrderPageSize
	}
	return size
}

func (r *OrderRepository) getOrderForUpdate(ctx context.Context, tx *firestore.Transaction, orderID string) (*firestore.DocumentRef, orderDocument, error) {
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, orderDocument{}, err
	}
	snap, err := tx.Get(orderRef)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, orderDocument{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return nil, orderDocument{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, orderDocument{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return orderRef, doc, nil
}

// Page tokens carry the ordering boundary of the previous page: createdAt
// for account listings, (statusRank, createdAt) for the shipper queue.

func encodeTimeCursor(at time.Time) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{at.UTC().Format(time.RFC3339Nano)},
	})
}

func decodeTimeCursor(token string) (time.Time, bool, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(cursor.StartAfter) == 0 {
		return time.Time{}, false, nil
	}
	at, err := cursorTimeValue(cursor.StartAfter[0])
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func encodeQueueCursor(rank int, at time.Time) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{rank, at.UTC().Format(time.RFC3339Nano)},
	})
}

func decodeQueueCursor(token string) (int, time.Time, bool, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return 0, time.Time{}, false, err
	}
	if len(cursor.StartAfter) == 0 {
		return 0, time.Time{}, false, nil
	}
	if len(cursor.StartAfter) != 2 {
		return 0, time.Time{}, false, pagination.ErrInvalidPageToken
	}
	// JSON round-trips numbers as float64.
	rawRank, ok := cursor.StartAfter[0].(float64)
	if !ok {
		return 0, time.Time{}, false, pagination.ErrInvalidPageToken
	}
	at, err := cursorTimeValue(cursor.StartAfter[1])
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return int(rawRank), at, true, nil
}

func cursorTimeValue(value any) (time.Time, error) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, pagination.ErrInvalidPageToken
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return at, nil
}

type orderDocument struct {
	AccountRef       string              `firestore:"accountRef"`
	Items            []orderItemDocument `firestore:"items"`
	TotalAmount      int64               `firestore:"totalAmount"`
	Status           string              `firestore:"status"`
	StatusRank       int                 `firestore:"statusRank"`
	DeliveryImageURL string              `firestore:"deliveryImageUrl,omitempty"`
	RefundAmount     int64               `firestore:"refundAmount,omitempty"`
	PaidAt           *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt        *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time          `firestore:"deliveredAt,omitempty"`
	CanceledAt       *time.Time          `firestore:"canceledAt,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductRef  string `firestore:"productRef"`
	ProductName string `firestore:"productName"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"qty"`
}

// setStatus keeps the stored queue rank in step with the status.
func (d *orderDocument) setStatus(status domain.OrderStatus) {
	d.Status = string(status)
	d.StatusRank = statusQueueRank(status)
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductRef:  item.ProductRef,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		}
	}
	order := domain.Order{
		ID:           id,
		AccountRef:   d.AccountRef,
		Items:        items,
		TotalAmount:  d.TotalAmount,
		Status:       domain.OrderStatus(d.Status),
		RefundAmount: d.RefundAmount,
		PaidAt:       d.PaidAt,
		ShippedAt:    d.ShippedAt,
		DeliveredAt:  d.DeliveredAt,
		CanceledAt:   d.CanceledAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if url := strings.TrimSpace(d.DeliveryImageURL); url != "" {
		order.DeliveryImageURL = &url
	}
	return order
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	return pfirestore.WrapError(op, err)
}
