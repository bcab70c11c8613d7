package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/platform/auth"
	"github.com/glowmart/api/internal/services"
)

type stubOrderService struct {
	placeFn          func(context.Context, services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	confirmPayFn     func(context.Context, services.ConfirmPaymentCommand) (domain.Order, error)
	markShippingFn   func(context.Context, string) (domain.Order, error)
	confirmDeliverFn func(context.Context, services.ConfirmDeliveryCommand) (domain.Order, error)
	cancelFn         func(context.Context, string) (services.CancelOrderResult, error)
	getFn            func(context.Context, string) (domain.Order, error)
	listAccountFn    func(context.Context, string, domain.Pagination) (domain.CursorPage[domain.Order], error)
	listFulfillFn    func(context.Context, domain.Pagination) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlaceOrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
	if s.confirmPayFn != nil {
		return s.confirmPayFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkShipping(ctx context.Context, orderID string) (domain.Order, error) {
	if s.markShippingFn != nil {
		return s.markShippingFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ConfirmDelivery(ctx context.Context, cmd services.ConfirmDeliveryCommand) (domain.Order, error) {
	if s.confirmDeliverFn != nil {
		return s.confirmDeliverFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderID string) (services.CancelOrderResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, orderID)
	}
	return services.CancelOrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListAccountOrders(ctx context.Context, accountRef string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listAccountFn != nil {
		return s.listAccountFn(ctx, accountRef, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) ListFulfillableOrders(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listFulfillFn != nil {
		return s.listFulfillFn(ctx, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubAccountService struct {
	registerFn   func(context.Context, services.RegisterAccountCommand) (domain.Account, error)
	getFn        func(context.Context, string) (domain.Account, error)
	addBalanceFn func(context.Context, string, int64) (domain.Account, error)
}

func (s *stubAccountService) Register(ctx context.Context, cmd services.RegisterAccountCommand) (domain.Account, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, cmd)
	}
	return domain.Account{}, errors.New("not implemented")
}

func (s *stubAccountService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	if s.getFn != nil {
		return s.getFn(ctx, accountID)
	}
	return domain.Account{}, errors.New("not implemented")
}

func (s *stubAccountService) AddBalance(ctx context.Context, accountID string, amount int64) (domain.Account, error) {
	if s.addBalanceFn != nil {
		return s.addBalanceFn(ctx, accountID, amount)
	}
	return domain.Account{}, errors.New("not implemented")
}

func newOrderTestRouter(orders services.OrderService, accounts services.AccountService) chi.Router {
	handler := NewOrderHandlers(OrderHandlersConfig{
		Orders:         orders,
		Accounts:       accounts,
		ClientDeepLink: "glowmart://payment-result",
	})
	router := chi.NewRouter()
	router.Route("/order", handler.Routes)
	return router
}

func TestOrderHandlersPlaceOrderSuccess(t *testing.T) {
	var captured services.PlaceOrderCommand
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			captured = cmd
			return services.PlaceOrderResult{
				Order:      domain.Order{ID: "ord_123", AccountRef: cmd.AccountRef, Status: domain.OrderStatusPending},
				PaymentURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=ord_123",
				ExpiresAt:  time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	body := bytes.NewBufferString(`{"account":"acct-1","items":[{"product":"prod-1","quantity":2},{"product":"prod-2","quantity":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/order/add-to-cart", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))

	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.AccountRef != "acct-1" {
		t.Fatalf("expected account acct-1, got %q", captured.AccountRef)
	}
	if len(captured.Lines) != 2 || captured.Lines[0].ProductRef != "prod-1" || captured.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines: %+v", captured.Lines)
	}

	var resp placeOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "ord_123" {
		t.Fatalf("expected order id ord_123, got %q", resp.OrderID)
	}
	if !strings.Contains(resp.PaymentURL, "vnp_TxnRef=ord_123") {
		t.Fatalf("unexpected payment url %q", resp.PaymentURL)
	}
}

func TestOrderHandlersPlaceOrderForeignAccountForbidden(t *testing.T) {
	body := bytes.NewBufferString(`{"account":"acct-other","items":[{"product":"prod-1","quantity":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/order/add-to-cart", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))

	rec := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestOrderHandlersPlaceOrderRejectsEmptyItems(t *testing.T) {
	body := bytes.NewBufferString(`{"account":"acct-1","items":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/order/add-to-cart", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1"}))

	rec := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestOrderHandlersConfirmPaymentRedirectsSuccess(t *testing.T) {
	var captured services.ConfirmPaymentCommand
	service := &stubOrderService{
		confirmPayFn: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, Status: domain.OrderStatusPaid}, nil
		},
	}

	target := "/order/confirm-payment/ord_123?vnp_ResponseCode=00&vnp_TxnRef=ord_123&vnp_SecureHash=abcdef"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(location.String(), "glowmart://payment-result") {
		t.Fatalf("unexpected redirect target %q", location.String())
	}
	query := location.Query()
	if query.Get("status") != "success" {
		t.Fatalf("expected status=success, got %q", query.Get("status"))
	}
	if query.Get("orderId") != "ord_123" {
		t.Fatalf("expected orderId=ord_123, got %q", query.Get("orderId"))
	}

	if captured.OrderID != "ord_123" {
		t.Fatalf("expected order id ord_123, got %q", captured.OrderID)
	}
	if captured.ResponseCode != "00" {
		t.Fatalf("expected response code 00, got %q", captured.ResponseCode)
	}
	if captured.Signature != "abcdef" {
		t.Fatalf("expected signature abcdef, got %q", captured.Signature)
	}
	if captured.Params["vnp_TxnRef"] != "ord_123" {
		t.Fatalf("expected params to include vnp_TxnRef, got %+v", captured.Params)
	}
}

func TestOrderHandlersConfirmPaymentRedirectsFailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{name: "declined", err: services.ErrOrderPaymentDeclined, reason: "payment_declined"},
		{name: "signature", err: services.ErrOrderPaymentSignature, reason: "signature_invalid"},
		{name: "not found", err: services.ErrOrderNotFound, reason: "order_not_found"},
		{name: "already processed", err: services.ErrOrderInvalidState, reason: "already_processed"},
		{name: "other", err: errors.New("boom"), reason: "server_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				confirmPayFn: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/order/confirm-payment/ord_123?vnp_ResponseCode=24", nil)
			rec := httptest.NewRecorder()
			newOrderTestRouter(service, nil).ServeHTTP(rec, req)

			if rec.Code != http.StatusFound {
				t.Fatalf("expected status 302, got %d", rec.Code)
			}
			location, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatalf("parse location: %v", err)
			}
			query := location.Query()
			if query.Get("status") != "failed" {
				t.Fatalf("expected status=failed, got %q", query.Get("status"))
			}
			if query.Get("reason") != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, query.Get("reason"))
			}
		})
	}
}

func TestOrderHandlersUpdateShipping(t *testing.T) {
	service := &stubOrderService{
		markShippingFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			if orderID != "ord_123" {
				t.Fatalf("expected order id ord_123, got %q", orderID)
			}
			shipped := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
			return domain.Order{ID: orderID, Status: domain.OrderStatusShipping, ShippedAt: &shipped}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/order/update-shipping/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "shipper-1", Roles: []string{auth.RoleShipper}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.Status != string(domain.OrderStatusShipping) {
		t.Fatalf("expected shipping status, got %q", resp.Order.Status)
	}
	if resp.Order.ShippedAt == "" {
		t.Fatalf("expected shippedAt to be set")
	}
}

func TestOrderHandlersUpdateShippingInvalidState(t *testing.T) {
	service := &stubOrderService{
		markShippingFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/order/update-shipping/ord_123", nil)
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestOrderHandlersPlaceOrderInsufficientStock(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			return services.PlaceOrderResult{}, services.ErrOrderInsufficientStock
		},
	}

	body := bytes.NewBufferString(`{"account":"acct-1","items":[{"product":"prod_1","quantity":99}]}`)
	req := httptest.NewRequest(http.MethodPost, "/order/add-to-cart", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderHandlersCancelOrderInvalidState(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, AccountRef: "acct-1", Status: domain.OrderStatusPending}, nil
		},
		cancelFn: func(ctx context.Context, orderID string) (services.CancelOrderResult, error) {
			return services.CancelOrderResult{}, services.ErrOrderInvalidState
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/order/cancel-order/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderHandlersConfirmDelivery(t *testing.T) {
	var captured services.ConfirmDeliveryCommand
	var capturedPhoto []byte
	service := &stubOrderService{
		confirmDeliverFn: func(ctx context.Context, cmd services.ConfirmDeliveryCommand) (domain.Order, error) {
			captured = cmd
			data, readErr := io.ReadAll(cmd.Photo)
			if readErr != nil {
				return domain.Order{}, readErr
			}
			capturedPhoto = data
			imageURL := "https://storage.googleapis.com/photos/ord_123.jpg"
			return domain.Order{ID: cmd.OrderID, Status: domain.OrderStatusDelivered, DeliveryImageURL: &imageURL}, nil
		},
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(deliveryImageFormField, "proof.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/order/confirm-delivery/ord_123", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_123" {
		t.Fatalf("expected order id ord_123, got %q", captured.OrderID)
	}
	if captured.FileName != "proof.jpg" {
		t.Fatalf("expected file name proof.jpg, got %q", captured.FileName)
	}
	if string(capturedPhoto) != "jpeg-bytes" {
		t.Fatalf("unexpected photo payload %q", capturedPhoto)
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.DeliveryImageURL == "" {
		t.Fatalf("expected delivery image url in response")
	}
}

func TestOrderHandlersConfirmDeliveryRequiresFile(t *testing.T) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/order/confirm-delivery/ord_123", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestOrderHandlersListAccountOrdersOwner(t *testing.T) {
	service := &stubOrderService{
		listAccountFn: func(ctx context.Context, accountRef string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
			if accountRef != "acct-1" {
				t.Fatalf("expected account acct-1, got %q", accountRef)
			}
			if pager.PageSize != 5 {
				t.Fatalf("expected page size 5, got %d", pager.PageSize)
			}
			return domain.CursorPage[domain.Order]{
				Items:         []domain.Order{{ID: "ord_1", AccountRef: accountRef, Status: domain.OrderStatusPaid}},
				NextPageToken: "next-token",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/order/account/acct-1?page_size=5", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp orderListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "ord_1" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if resp.NextPageToken != "next-token" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersListAccountOrdersForeignAccountForbidden(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/order/account/acct-other", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestOrderHandlersAddBalance(t *testing.T) {
	accounts := &stubAccountService{
		addBalanceFn: func(ctx context.Context, accountID string, amount int64) (domain.Account, error) {
			if accountID != "acct-1" {
				t.Fatalf("expected account acct-1, got %q", accountID)
			}
			if amount != 50000 {
				t.Fatalf("expected amount 50000, got %d", amount)
			}
			return domain.Account{ID: accountID, Balance: 150000, Role: domain.AccountRoleCustomer}, nil
		},
	}

	body := bytes.NewBufferString(`{"account":"acct-1","amount":50000}`)
	req := httptest.NewRequest(http.MethodPatch, "/order/add-balance", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(nil, accounts).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Account.Balance != 150000 {
		t.Fatalf("expected balance 150000, got %d", resp.Account.Balance)
	}
}

func TestOrderHandlersAddBalanceRejectsNonPositiveAmount(t *testing.T) {
	body := bytes.NewBufferString(`{"account":"acct-1","amount":0}`)
	req := httptest.NewRequest(http.MethodPatch, "/order/add-balance", body)
	rec := httptest.NewRecorder()
	newOrderTestRouter(nil, &stubAccountService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestOrderHandlersCancelOrderOwner(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, AccountRef: "acct-1", Status: domain.OrderStatusPaid}, nil
		},
		cancelFn: func(ctx context.Context, orderID string) (services.CancelOrderResult, error) {
			return services.CancelOrderResult{
				Order:        domain.Order{ID: orderID, Status: domain.OrderStatusCanceled, RefundAmount: 125000},
				RefundAmount: 125000,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/order/cancel-order/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp cancelOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RefundAmount != 125000 {
		t.Fatalf("expected refund 125000, got %d", resp.RefundAmount)
	}
}

func TestOrderHandlersCancelOrderForeignOwnerHidden(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, AccountRef: "acct-other"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/order/cancel-order/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "acct-1", Roles: []string{auth.RoleCustomer}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestOrderHandlersCancelOrderAdminSkipsOwnershipLookup(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, orderID string) (services.CancelOrderResult, error) {
			return services.CancelOrderResult{RefundAmount: 100}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/order/cancel-order/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderHandlersListShipperOrders(t *testing.T) {
	service := &stubOrderService{
		listFulfillFn: func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{
				Items: []domain.Order{
					{ID: "ord_1", Status: domain.OrderStatusPaid},
					{ID: "ord_2", Status: domain.OrderStatusShipping},
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/order/shipper-orders", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "shipper-1", Roles: []string{auth.RoleShipper}}))
	rec := httptest.NewRecorder()
	newOrderTestRouter(service, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp orderListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(resp.Items))
	}
}
