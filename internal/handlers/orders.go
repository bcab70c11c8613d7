package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/platform/auth"
	"github.com/glowmart/api/internal/platform/httpx"
	"github.com/glowmart/api/internal/services"
)

const (
	gatewayResponseCodeParam = "vnp_ResponseCode"
	gatewaySignatureParam    = "vnp_SecureHash"
	deliveryImageFormField   = "deliveryImage"
)

type placeOrderRequestLine struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type placeOrderRequest struct {
	Account string                  `json:"account"`
	Items   []placeOrderRequestLine `json:"items"`
}

type placeOrderResponse struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

type addBalanceRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type cancelOrderResponse struct {
	Message      string `json:"message"`
	RefundAmount int64  `json:"refundAmount"`
}

type orderItemPayload struct {
	Product   string `json:"product"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	AccountRef       string             `json:"account"`
	Items            []orderItemPayload `json:"items"`
	TotalAmount      int64              `json:"totalAmount"`
	Status           string             `json:"status"`
	DeliveryImageURL string             `json:"deliveryImageUrl,omitempty"`
	RefundAmount     int64              `json:"refundAmount,omitempty"`
	PaidAt           string             `json:"paidAt,omitempty"`
	ShippedAt        string             `json:"shippedAt,omitempty"`
	DeliveredAt      string             `json:"deliveredAt,omitempty"`
	CanceledAt       string             `json:"canceledAt,omitempty"`
	CreatedAt        string             `json:"createdAt,omitempty"`
	UpdatedAt        string             `json:"updatedAt,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// OrderHandlers drives the order lifecycle endpoints, including the public
// gateway return URL that redirects back into the client application.
type OrderHandlers struct {
	authn          *auth.Authenticator
	orders         services.OrderService
	accounts       services.AccountService
	clientDeepLink string
}

// OrderHandlersConfig carries the dependencies for NewOrderHandlers.
type OrderHandlersConfig struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Accounts      services.AccountService
	// ClientDeepLink is the client URL the gateway return handler redirects to.
	ClientDeepLink string
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(cfg OrderHandlersConfig) *OrderHandlers {
	return &OrderHandlers{
		authn:          cfg.Authenticator,
		orders:         cfg.Orders,
		accounts:       cfg.Accounts,
		clientDeepLink: strings.TrimSpace(cfg.ClientDeepLink),
	}
}

// Routes registers the /order endpoints. The gateway return URL stays outside
// the auth group because the redirect from the payment page carries no token.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/confirm-payment/{orderID}", h.confirmPayment)

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/add-to-cart", h.placeOrder)
		g.Get("/account/{accountID}", h.listAccountOrders)
		g.Post("/cancel-order/{orderID}", h.cancelOrder)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleShipper))
		}
		g.Patch("/update-shipping/{orderID}", h.updateShipping)
		g.Post("/confirm-delivery/{orderID}", h.confirmDelivery)
		g.Get("/shipper-orders", h.listShipperOrders)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		g.Patch("/add-balance", h.addBalance)
	})
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	accountRef := strings.TrimSpace(req.Account)
	if accountRef == "" {
		accountRef = identity.UID
	}
	if !identity.HasRole(auth.RoleAdmin) && !strings.EqualFold(accountRef, identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot place orders for another account", http.StatusForbidden))
		return
	}

	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one item is required", http.StatusBadRequest))
		return
	}

	lines := make([]services.PlaceOrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		product := strings.TrimSpace(item.Product)
		if product == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item product is required", http.StatusBadRequest))
			return
		}
		if item.Quantity <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item quantity must be positive", http.StatusBadRequest))
			return
		}
		lines = append(lines, services.PlaceOrderLine{ProductRef: product, Quantity: item.Quantity})
	}

	result, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		AccountRef: accountRef,
		Lines:      lines,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, placeOrderResponse{
		OrderID:    result.Order.ID,
		PaymentURL: result.PaymentURL,
		ExpiresAt:  formatTime(result.ExpiresAt),
	})
}

// confirmPayment is the gateway return URL. The shopper arrives here via a
// browser redirect, so every outcome becomes another redirect into the client
// deep link rather than a JSON body.
func (h *OrderHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	if h.orders == nil {
		h.redirectToClient(w, r, orderID, "", "server_error")
		return
	}
	if orderID == "" {
		h.redirectToClient(w, r, "", "", "order_not_found")
		return
	}

	query := r.URL.Query()
	params := make(map[string]string, len(query))
	for key := range query {
		params[key] = query.Get(key)
	}

	_, err := h.orders.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:      orderID,
		ResponseCode: query.Get(gatewayResponseCodeParam),
		Params:       params,
		Signature:    query.Get(gatewaySignatureParam),
	})
	if err != nil {
		h.redirectToClient(w, r, orderID, "", confirmPaymentFailureReason(err))
		return
	}

	h.redirectToClient(w, r, orderID, "success", "")
}

func confirmPaymentFailureReason(err error) string {
	switch {
	case errors.Is(err, services.ErrOrderPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, services.ErrOrderPaymentSignature):
		return "signature_invalid"
	case errors.Is(err, services.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, services.ErrOrderInvalidState):
		return "already_processed"
	case errors.Is(err, services.ErrOrderInvalidInput):
		return "invalid_request"
	default:
		return "server_error"
	}
}

func (h *OrderHandlers) redirectToClient(w http.ResponseWriter, r *http.Request, orderID, status, reason string) {
	target := h.clientDeepLink
	if target == "" {
		target = "/"
	}

	values := url.Values{}
	if orderID != "" {
		values.Set("orderId", orderID)
	}
	if status == "" {
		status = "failed"
	}
	values.Set("status", status)
	if reason != "" {
		values.Set("reason", reason)
	}

	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	http.Redirect(w, r, target+separator+values.Encode(), http.StatusFound)
}

func (h *OrderHandlers) updateShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.MarkShipping(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form data is required", http.StatusBadRequest))
		return
	}

	file, header, err := r.FormFile(deliveryImageFormField)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "deliveryImage file is required", http.StatusBadRequest))
		return
	}
	defer file.Close()

	order, err := h.orders.ConfirmDelivery(ctx, services.ConfirmDeliveryCommand{
		OrderID:     orderID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Photo:       file,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listAccountOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "account id is required", http.StatusBadRequest))
		return
	}

	if !identity.HasRole(auth.RoleAdmin) && !strings.EqualFold(accountID, identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot view orders for another account", http.StatusForbidden))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListAccountOrders(ctx, accountID, pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) listShipperOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListFulfillableOrders(ctx, pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) addBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req addBalanceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	accountID := strings.TrimSpace(req.Account)
	if accountID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "account is required", http.StatusBadRequest))
		return
	}
	if req.Amount <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be positive", http.StatusBadRequest))
		return
	}

	account, err := h.accounts.AddBalance(ctx, accountID, req.Amount)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if !identity.HasRole(auth.RoleAdmin) {
		order, err := h.orders.GetOrder(ctx, orderID)
		if err != nil {
			writeOrderError(ctx, w, err)
			return
		}
		if !strings.EqualFold(strings.TrimSpace(order.AccountRef), strings.TrimSpace(identity.UID)) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		}
	}

	result, err := h.orders.CancelOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cancelOrderResponse{
		Message:      "order canceled",
		RefundAmount: result.RefundAmount,
	})
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			Product:   item.ProductRef,
			Name:      item.ProductName,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	payload := orderPayload{
		ID:           order.ID,
		AccountRef:   order.AccountRef,
		Items:        items,
		TotalAmount:  order.TotalAmount,
		Status:       string(order.Status),
		RefundAmount: order.RefundAmount,
		PaidAt:       formatTime(pointerTime(order.PaidAt)),
		ShippedAt:    formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:  formatTime(pointerTime(order.DeliveredAt)),
		CanceledAt:   formatTime(pointerTime(order.CanceledAt)),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}
	if order.DeliveryImageURL != nil {
		payload.DeliveryImageURL = *order.DeliveryImageURL
	}
	return payload
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "requested quantity exceeds available stock", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", "order cannot transition from its current status", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "payment was declined by the gateway", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrOrderPaymentSignature):
		httpx.WriteError(ctx, w, httpx.NewError("payment_signature_invalid", "gateway signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order request invalid", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order request", http.StatusInternalServerError))
	}
}
