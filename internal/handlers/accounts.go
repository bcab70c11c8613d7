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

// AccountHandlers exposes account lookup endpoints.
type AccountHandlers struct {
	authn    *auth.Authenticator
	accounts services.AccountService
}

// NewAccountHandlers constructs a new AccountHandlers instance.
func NewAccountHandlers(authn *auth.Authenticator, accounts services.AccountService) *AccountHandlers {
	return &AccountHandlers{
		authn:    authn,
		accounts: accounts,
	}
}

// Routes registers the /account endpoints.
func (h *AccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/{accountID}", h.getAccount)
}

type accountPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Balance     int64  `json:"balance"`
	Role        string `json:"role"`
	Locale      string `json:"locale,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type accountResponse struct {
	Account accountPayload `json:"account"`
}

func (h *AccountHandlers) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
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
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
		return
	}

	account, err := h.accounts.GetAccount(ctx, accountID)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func buildAccountPayload(account domain.Account) accountPayload {
	return accountPayload{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Balance:     account.Balance,
		Role:        string(account.Role),
		Locale:      account.Locale,
		CreatedAt:   formatTime(account.CreatedAt),
		UpdatedAt:   formatTime(account.UpdatedAt),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAccountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "account request invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("account_conflict", "account already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process account request", http.StatusInternalServerError))
	}
}
