package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/services"
)

func newInternalTestRouter(accounts services.AccountService) chi.Router {
	handler := NewInternalHandlers(accounts)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)
	return router
}

func TestInternalHandlersProvisionAccount(t *testing.T) {
	var captured services.RegisterAccountCommand
	accounts := &stubAccountService{
		registerFn: func(ctx context.Context, cmd services.RegisterAccountCommand) (domain.Account, error) {
			captured = cmd
			return domain.Account{ID: cmd.ID, Email: cmd.Email, Role: cmd.Role}, nil
		},
	}

	body := bytes.NewBufferString(`{"id":"acct-1","email":"shopper@example.com","displayName":"Shopper","role":"customer","locale":"vi-VN"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/accounts", body)
	rec := httptest.NewRecorder()
	newInternalTestRouter(accounts).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.ID != "acct-1" || captured.Role != domain.AccountRoleCustomer {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.Locale != "vi-VN" {
		t.Fatalf("expected locale vi-VN, got %q", captured.Locale)
	}

	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Account.ID != "acct-1" {
		t.Fatalf("expected account id acct-1, got %q", resp.Account.ID)
	}
}

func TestInternalHandlersProvisionAccountDefaultsRole(t *testing.T) {
	accounts := &stubAccountService{
		registerFn: func(ctx context.Context, cmd services.RegisterAccountCommand) (domain.Account, error) {
			if cmd.Role != domain.AccountRoleCustomer {
				t.Fatalf("expected customer role default, got %q", cmd.Role)
			}
			return domain.Account{ID: cmd.ID, Role: cmd.Role}, nil
		},
	}

	body := bytes.NewBufferString(`{"id":"acct-2","email":"x@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/accounts", body)
	rec := httptest.NewRecorder()
	newInternalTestRouter(accounts).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInternalHandlersProvisionAccountRejectsUnknownRole(t *testing.T) {
	body := bytes.NewBufferString(`{"id":"acct-3","role":"superuser"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/accounts", body)
	rec := httptest.NewRecorder()
	newInternalTestRouter(&stubAccountService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestInternalHandlersProvisionAccountConflict(t *testing.T) {
	accounts := &stubAccountService{
		registerFn: func(ctx context.Context, cmd services.RegisterAccountCommand) (domain.Account, error) {
			return domain.Account{}, services.ErrAccountConflict
		},
	}

	body := bytes.NewBufferString(`{"id":"acct-1","email":"dup@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/accounts", body)
	rec := httptest.NewRecorder()
	newInternalTestRouter(accounts).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}
