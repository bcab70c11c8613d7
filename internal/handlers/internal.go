package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/platform/httpx"
	"github.com/glowmart/api/internal/services"
)

type provisionAccountRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Locale      string `json:"locale"`
}

// InternalHandlers exposes service-to-service endpoints. The route group is
// expected to sit behind OIDC validation middleware.
type InternalHandlers struct {
	accounts services.AccountService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(accounts services.AccountService) *InternalHandlers {
	return &InternalHandlers{accounts: accounts}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/accounts", h.provisionAccount)
}

// provisionAccount mirrors a Firebase user into the account store. Invoked by
// the auth sync function after signup.
func (h *InternalHandlers) provisionAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req provisionAccountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	role := domain.AccountRole(strings.ToLower(strings.TrimSpace(req.Role)))
	switch role {
	case "", domain.AccountRoleCustomer:
		role = domain.AccountRoleCustomer
	case domain.AccountRoleShipper, domain.AccountRoleAdmin:
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "role must be customer, shipper, or admin", http.StatusBadRequest))
		return
	}

	account, err := h.accounts.Register(ctx, services.RegisterAccountCommand{
		ID:          strings.TrimSpace(req.ID),
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        role,
		Locale:      strings.TrimSpace(req.Locale),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, accountResponse{Account: buildAccountPayload(account)})
}
