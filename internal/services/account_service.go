package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/repositories"
)

const (
	eventAccountRegistered = "account.registered"
	eventAccountCredited   = "account.credited"
)

var (
	// ErrAccountInvalidInput signals the caller provided invalid arguments.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the account could not be located.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict indicates the account id or email is already taken.
	ErrAccountConflict = errors.New("account: conflict")
)

var validAccountRoles = map[domain.AccountRole]struct{}{
	domain.AccountRoleCustomer: {},
	domain.AccountRoleShipper:  {},
	domain.AccountRoleAdmin:    {},
}

// AccountServiceDeps bundles the collaborators required to construct an account service.
type AccountServiceDeps struct {
	Accounts repositories.AccountRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	repo   repositories.AccountRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewAccountService wires dependencies into a concrete AccountService implementation.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &accountService{
		repo: deps.Accounts,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *accountService) Register(ctx context.Context, cmd RegisterAccountCommand) (domain.Account, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return domain.Account{}, fmt.Errorf("%w: id is required", ErrAccountInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Account{}, fmt.Errorf("%w: a valid email is required", ErrAccountInvalidInput)
	}

	role := cmd.Role
	if role == "" {
		role = domain.AccountRoleCustomer
	}
	if _, ok := validAccountRoles[role]; !ok {
		return domain.Account{}, fmt.Errorf("%w: unknown role %q", ErrAccountInvalidInput, cmd.Role)
	}

	now := s.clock()
	account, err := s.repo.Insert(ctx, domain.Account{
		ID:          id,
		Email:       email,
		DisplayName: strings.TrimSpace(cmd.DisplayName),
		Role:        role,
		Locale:      normaliseLocale(cmd.Locale),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Account{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventAccountRegistered, map[string]any{
		"accountId": account.ID,
		"role":      string(account.Role),
	})
	return account, nil
}

func (s *accountService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, fmt.Errorf("%w: id is required", ErrAccountInvalidInput)
	}
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return domain.Account{}, s.mapRepositoryError(err)
	}
	return account, nil
}

func (s *accountService) AddBalance(ctx context.Context, accountID string, amount int64) (domain.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, fmt.Errorf("%w: id is required", ErrAccountInvalidInput)
	}
	if amount <= 0 {
		return domain.Account{}, fmt.Errorf("%w: amount must be > 0", ErrAccountInvalidInput)
	}

	account, err := s.repo.Credit(ctx, accountID, amount, s.clock())
	if err != nil {
		return domain.Account{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventAccountCredited, map[string]any{
		"accountId": account.ID,
		"amount":    amount,
		"balance":   account.Balance,
	})
	return account, nil
}

func (s *accountService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrAccountNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrAccountConflict, repoErr.Error())
		}
	}
	return err
}

// normaliseLocale canonicalises BCP 47 tags and drops values that do not parse.
func normaliseLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return tag.String()
}
