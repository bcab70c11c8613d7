package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/payments"
	"github.com/glowmart/api/internal/repositories"
)

const (
	eventOrderPlaced           = "order.placed"
	eventOrderPaid             = "order.paid"
	eventOrderShipping         = "order.shipping"
	eventOrderDelivered        = "order.delivered"
	eventOrderCanceled         = "order.canceled"
	eventOrderNotifyFailed     = "order.notify.failed"
	eventOrderPaymentDeclined  = "order.payment.declined"
	eventOrderSignatureInvalid = "order.payment.signature_invalid"

	paymentSessionTTL = 24 * time.Hour

	// gatewaySuccessCode is the response code the gateway sends for settled payments.
	gatewaySuccessCode = "00"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAccountNotFound indicates the ordering account does not exist.
	ErrOrderAccountNotFound = errors.New("order: account not found")
	// ErrOrderProductNotFound indicates a referenced product does not exist.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderInsufficientStock indicates a requested quantity exceeds availability.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderInvalidState indicates the order status forbids the transition.
	ErrOrderInvalidState = errors.New("order: state invalid")
	// ErrOrderPaymentDeclined indicates the gateway reported a non-success code.
	ErrOrderPaymentDeclined = errors.New("order: payment declined")
	// ErrOrderPaymentSignature indicates the gateway callback signature did not verify.
	ErrOrderPaymentSignature = errors.New("order: payment signature invalid")
)

// DeliveryPhotoStore persists delivery evidence and returns the stored URL.
type DeliveryPhotoStore interface {
	Save(ctx context.Context, orderID, fileName, contentType string, photo io.Reader) (string, error)
}

// OrderNotifier delivers customer-facing order notifications.
type OrderNotifier interface {
	OrderCanceled(ctx context.Context, account domain.Account, order domain.Order, refund int64) error
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Accounts repositories.AccountRepository
	Payments *payments.Manager
	Photos   DeliveryPhotoStore
	Notifier OrderNotifier
	// SettlementAccount receives the retained half of every cancellation refund.
	SettlementAccount string
	// CallbackBaseURL is the public URL prefix the gateway redirects back to;
	// the order ID is appended as the final path segment.
	CallbackBaseURL string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	accounts   repositories.AccountRepository
	payments   *payments.Manager
	photos     DeliveryPhotoStore
	notifier   OrderNotifier
	settlement string
	callback   string
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("order service: account repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payments manager is required")
	}
	if strings.TrimSpace(deps.SettlementAccount) == "" {
		return nil, errors.New("order service: settlement account is required")
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

	return &orderService{
		orders:     deps.Orders,
		accounts:   deps.Accounts,
		payments:   deps.Payments,
		photos:     deps.Photos,
		notifier:   deps.Notifier,
		settlement: strings.TrimSpace(deps.SettlementAccount),
		callback:   strings.TrimRight(strings.TrimSpace(deps.CallbackBaseURL), "/"),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	accountRef := strings.TrimSpace(cmd.AccountRef)
	if accountRef == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: account ref is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return PlaceOrderResult{}, fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}

	lines := make([]repositories.PlaceOrderLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		productRef := strings.TrimSpace(line.ProductRef)
		if productRef == "" {
			return PlaceOrderResult{}, fmt.Errorf("%w: product ref is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return PlaceOrderResult{}, fmt.Errorf("%w: quantity for %s must be > 0", ErrOrderInvalidInput, productRef)
		}
		lines = append(lines, repositories.PlaceOrderLine{ProductRef: productRef, Quantity: line.Quantity})
	}

	now := s.now()
	order, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		OrderID:    s.newID(),
		AccountRef: accountRef,
		Lines:      lines,
		Now:        now,
	})
	if err != nil {
		return PlaceOrderResult{}, s.mapRepositoryError(err)
	}

	locale := ""
	if account, err := s.accounts.FindByID(ctx, accountRef); err == nil {
		locale = account.Locale
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		Locale:    locale,
		ReturnURL: s.callbackURL(order.ID),
		ExpiresIn: paymentSessionTTL,
		Items:     checkoutItems(order.Items),
	})
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("order place: create payment session: %w", err)
	}

	s.logger(ctx, eventOrderPlaced, map[string]any{
		"orderId": order.ID,
		"account": accountRef,
		"total":   order.TotalAmount,
		"items":   len(order.Items),
	})

	return PlaceOrderResult{
		Order:      order,
		PaymentURL: session.RedirectURL,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	// A callback-capable provider must vouch for every callback, including
	// ones that arrive without a hash. Only providers with no hosted-redirect
	// flow at all are exempt.
	if err := s.payments.VerifyCallback(cmd.Params, cmd.Signature); err != nil && !errors.Is(err, payments.ErrCallbackUnsupported) {
		s.logger(ctx, eventOrderSignatureInvalid, map[string]any{"orderId": orderID})
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentSignature, err)
	}

	if strings.TrimSpace(cmd.ResponseCode) != gatewaySuccessCode {
		s.logger(ctx, eventOrderPaymentDeclined, map[string]any{
			"orderId": orderID,
			"code":    cmd.ResponseCode,
		})
		return domain.Order{}, fmt.Errorf("%w: gateway code %q", ErrOrderPaymentDeclined, cmd.ResponseCode)
	}

	order, err := s.orders.MarkPaid(ctx, orderID, s.now())
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventOrderPaid, map[string]any{
		"orderId": order.ID,
		"total":   order.TotalAmount,
	})
	return order, nil
}

func (s *orderService) MarkShipping(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.MarkShipping(ctx, orderID, s.now())
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventOrderShipping, map[string]any{"orderId": order.ID})
	return order, nil
}

func (s *orderService) ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Photo == nil {
		return domain.Order{}, fmt.Errorf("%w: delivery photo is required", ErrOrderInvalidInput)
	}
	if s.photos == nil {
		return domain.Order{}, errors.New("order service: photo store not configured")
	}

	// Guard the state before uploading so a wrong-status request cannot leave
	// an orphaned object behind.
	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if current.Status != domain.OrderStatusShipping {
		return domain.Order{}, fmt.Errorf("%w: order %s is not shipping", ErrOrderInvalidState, orderID)
	}

	imageURL, err := s.photos.Save(ctx, orderID, cmd.FileName, cmd.ContentType, cmd.Photo)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order delivery: store photo: %w", err)
	}

	order, err := s.orders.MarkDelivered(ctx, orderID, imageURL, s.now())
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventOrderDelivered, map[string]any{
		"orderId":  order.ID,
		"imageUrl": imageURL,
	})
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID string) (CancelOrderResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return CancelOrderResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	result, err := s.orders.Cancel(ctx, repositories.CancelOrderRequest{
		OrderID:           orderID,
		SettlementAccount: s.settlement,
		Now:               s.now(),
	})
	if err != nil {
		return CancelOrderResult{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventOrderCanceled, map[string]any{
		"orderId": result.Order.ID,
		"refund":  result.RefundAmount,
	})

	s.notifyCanceled(ctx, result.Order, result.RefundAmount)

	return CancelOrderResult{Order: result.Order, RefundAmount: result.RefundAmount}, nil
}

// notifyCanceled dispatches the refund email without blocking the response.
// Failures are logged, never surfaced to the caller.
func (s *orderService) notifyCanceled(ctx context.Context, order domain.Order, refund int64) {
	if s.notifier == nil {
		return
	}

	account, err := s.accounts.FindByID(ctx, order.AccountRef)
	if err != nil {
		s.logger(ctx, eventOrderNotifyFailed, map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.OrderCanceled(bgCtx, account, order, refund); err != nil {
			s.logger(bgCtx, eventOrderNotifyFailed, map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}()
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListAccountOrders(ctx context.Context, accountRef string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	accountRef = strings.TrimSpace(accountRef)
	if accountRef == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: account ref is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByAccount(ctx, accountRef, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListFulfillableOrders(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.ListFulfillable(ctx, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) callbackURL(orderID string) string {
	if s.callback == "" {
		return ""
	}
	return s.callback + "/" + orderID
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorAccountNotFound:
			return fmt.Errorf("%w: %s", ErrOrderAccountNotFound, orderErr.Message)
		case repositories.OrderErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrOrderProductNotFound, orderErr.Message)
		case repositories.OrderErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, orderErr.Message)
		case repositories.OrderErrorInvalidState:
			return fmt.Errorf("%w: %s", ErrOrderInvalidState, orderErr.Message)
		default:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, orderErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, repoErr.Error())
	}

	return err
}

func checkoutItems(items []domain.OrderItem) []payments.CheckoutItem {
	out := make([]payments.CheckoutItem, 0, len(items))
	for _, item := range items {
		out = append(out, payments.CheckoutItem{
			SKU:      item.ProductRef,
			Name:     item.ProductName,
			Amount:   item.UnitPrice,
			Quantity: int64(item.Quantity),
		})
	}
	return out
}
