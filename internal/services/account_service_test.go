package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/glowmart/api/internal/domain"
)

// repoFailure implements repositories.RepositoryError for stubbed persistence failures.
type repoFailure struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoFailure) Error() string       { return e.msg }
func (e *repoFailure) IsNotFound() bool    { return e.notFound }
func (e *repoFailure) IsConflict() bool    { return e.conflict }
func (e *repoFailure) IsUnavailable() bool { return e.unavailable }

func newTestAccountService(t *testing.T, repo *stubAccountRepository, clock func() time.Time) AccountService {
	t.Helper()
	svc, err := NewAccountService(AccountServiceDeps{Accounts: repo, Clock: clock})
	if err != nil {
		t.Fatalf("new account service: %v", err)
	}
	return svc
}

func TestAccountServiceRegister(t *testing.T) {
	now := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	var inserted domain.Account
	repo := &stubAccountRepository{
		insertFn: func(ctx context.Context, account domain.Account) (domain.Account, error) {
			inserted = account
			return account, nil
		},
	}
	svc := newTestAccountService(t, repo, func() time.Time { return now })

	account, err := svc.Register(context.Background(), RegisterAccountCommand{
		ID:          "acct-1",
		Email:       "  Shopper@Example.COM ",
		DisplayName: "  Shopper  ",
		Locale:      "vi-vn",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if inserted.Email != "shopper@example.com" {
		t.Fatalf("expected lowercased email, got %q", inserted.Email)
	}
	if inserted.DisplayName != "Shopper" {
		t.Fatalf("expected trimmed display name, got %q", inserted.DisplayName)
	}
	if inserted.Role != domain.AccountRoleCustomer {
		t.Fatalf("expected customer role default, got %q", inserted.Role)
	}
	if inserted.Locale != "vi-VN" {
		t.Fatalf("expected canonical locale vi-VN, got %q", inserted.Locale)
	}
	if !inserted.CreatedAt.Equal(now) || !inserted.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps: %+v", inserted)
	}
	if account.ID != "acct-1" {
		t.Fatalf("unexpected account %+v", account)
	}
}

func TestAccountServiceRegisterDropsUnparseableLocale(t *testing.T) {
	repo := &stubAccountRepository{
		insertFn: func(ctx context.Context, account domain.Account) (domain.Account, error) {
			if account.Locale != "" {
				t.Fatalf("expected locale dropped, got %q", account.Locale)
			}
			return account, nil
		},
	}
	svc := newTestAccountService(t, repo, nil)

	if _, err := svc.Register(context.Background(), RegisterAccountCommand{
		ID:     "acct-1",
		Email:  "x@example.com",
		Locale: "not a locale!!",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestAccountServiceRegisterValidation(t *testing.T) {
	svc := newTestAccountService(t, &stubAccountRepository{}, nil)

	cases := []struct {
		name string
		cmd  RegisterAccountCommand
	}{
		{"missing id", RegisterAccountCommand{Email: "x@example.com"}},
		{"missing email", RegisterAccountCommand{ID: "acct-1"}},
		{"malformed email", RegisterAccountCommand{ID: "acct-1", Email: "not-an-email"}},
		{"unknown role", RegisterAccountCommand{ID: "acct-1", Email: "x@example.com", Role: "superuser"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.cmd); !errors.Is(err, ErrAccountInvalidInput) {
				t.Fatalf("expected ErrAccountInvalidInput, got %v", err)
			}
		})
	}
}

func TestAccountServiceRegisterConflict(t *testing.T) {
	repo := &stubAccountRepository{
		insertFn: func(ctx context.Context, account domain.Account) (domain.Account, error) {
			return domain.Account{}, &repoFailure{msg: "account exists", conflict: true}
		},
	}
	svc := newTestAccountService(t, repo, nil)

	if _, err := svc.Register(context.Background(), RegisterAccountCommand{
		ID:    "acct-1",
		Email: "dup@example.com",
	}); !errors.Is(err, ErrAccountConflict) {
		t.Fatalf("expected ErrAccountConflict, got %v", err)
	}
}

func TestAccountServiceGetAccountNotFound(t *testing.T) {
	repo := &stubAccountRepository{
		findByIDFn: func(ctx context.Context, accountID string) (domain.Account, error) {
			return domain.Account{}, &repoFailure{msg: "missing", notFound: true}
		},
	}
	svc := newTestAccountService(t, repo, nil)

	if _, err := svc.GetAccount(context.Background(), "acct-404"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountServiceAddBalance(t *testing.T) {
	now := time.Date(2025, time.February, 2, 9, 0, 0, 0, time.UTC)
	repo := &stubAccountRepository{
		creditFn: func(ctx context.Context, accountID string, amount int64, at time.Time) (domain.Account, error) {
			if accountID != "acct-1" || amount != 50000 {
				t.Fatalf("unexpected credit: %s %d", accountID, amount)
			}
			if !at.Equal(now) {
				t.Fatalf("expected credit time %v, got %v", now, at)
			}
			return domain.Account{ID: accountID, Balance: 150000, UpdatedAt: at}, nil
		},
	}
	svc := newTestAccountService(t, repo, func() time.Time { return now })

	account, err := svc.AddBalance(context.Background(), " acct-1 ", 50000)
	if err != nil {
		t.Fatalf("add balance: %v", err)
	}
	if account.Balance != 150000 {
		t.Fatalf("expected balance 150000, got %d", account.Balance)
	}
}

func TestAccountServiceAddBalanceValidation(t *testing.T) {
	svc := newTestAccountService(t, &stubAccountRepository{}, nil)

	if _, err := svc.AddBalance(context.Background(), "", 100); !errors.Is(err, ErrAccountInvalidInput) {
		t.Fatalf("expected ErrAccountInvalidInput for missing id, got %v", err)
	}
	if _, err := svc.AddBalance(context.Background(), "acct-1", 0); !errors.Is(err, ErrAccountInvalidInput) {
		t.Fatalf("expected ErrAccountInvalidInput for zero amount, got %v", err)
	}
	if _, err := svc.AddBalance(context.Background(), "acct-1", -500); !errors.Is(err, ErrAccountInvalidInput) {
		t.Fatalf("expected ErrAccountInvalidInput for negative amount, got %v", err)
	}
}
