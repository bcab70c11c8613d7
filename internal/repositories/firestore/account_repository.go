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
)

const accountsCollection = "accounts"

// AccountRepository persists accounts in the accounts collection.
type AccountRepository struct {
	provider *pfirestore.Provider
	accounts *pfirestore.BaseRepository[accountDocument]
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(provider *pfirestore.Provider) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	return &AccountRepository{
		provider: provider,
		accounts: pfirestore.NewBaseRepository[accountDocument](provider, accountsCollection),
	}, nil
}

// Insert creates a new account document, failing on ID collisions.
func (r *AccountRepository) Insert(ctx context.Context, account domain.Account) (domain.Account, error) {
	if r == nil || r.accounts == nil {
		return domain.Account{}, errors.New("account repository not initialised")
	}
	id := strings.TrimSpace(account.ID)
	if id == "" {
		return domain.Account{}, errors.New("account insert: id is required")
	}

	doc := newAccountDocument(account)
	ref, err := r.accounts.DocumentRef(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Account{}, pfirestore.WrapError("accounts.insert", err)
	}
	return doc.toDomain(id), nil
}

// FindByID fetches an account by document ID.
func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	if r == nil || r.accounts == nil {
		return domain.Account{}, errors.New("account repository not initialised")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, errors.New("account find: id is required")
	}

	doc, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail fetches an account by its unique email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	if r == nil || r.accounts == nil {
		return domain.Account{}, errors.New("account repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Account{}, errors.New("account find: email is required")
	}

	docs, err := r.accounts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Account{}, err
	}
	if len(docs) == 0 {
		return domain.Account{}, pfirestore.WrapError("accounts.findByEmail", status.Error(codes.NotFound, "account not found"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// Credit atomically adds amount to the account balance.
func (r *AccountRepository) Credit(ctx context.Context, accountID string, amount int64, now time.Time) (domain.Account, error) {
	if r == nil || r.provider == nil {
		return domain.Account{}, errors.New("account repository not initialised")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, errors.New("account credit: id is required")
	}
	if amount <= 0 {
		return domain.Account{}, errors.New("account credit: amount must be > 0")
	}

	now = now.UTC()
	var credited domain.Account
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.accounts.DocumentRef(ctx, accountID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc accountDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode account %s: %w", accountID, err)
		}
		doc.Balance += amount
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		credited = doc.toDomain(accountID)
		return nil
	})
	if err != nil {
		return domain.Account{}, pfirestore.WrapError("accounts.credit", err)
	}
	return credited, nil
}

type accountDocument struct {
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	Balance     int64     `firestore:"balance"`
	Role        string    `firestore:"role"`
	Locale      string    `firestore:"locale,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newAccountDocument(account domain.Account) accountDocument {
	role := account.Role
	if role == "" {
		role = domain.AccountRoleCustomer
	}
	return accountDocument{
		Email:       strings.ToLower(strings.TrimSpace(account.Email)),
		DisplayName: strings.TrimSpace(account.DisplayName),
		Balance:     account.Balance,
		Role:        string(role),
		Locale:      strings.TrimSpace(account.Locale),
		CreatedAt:   account.CreatedAt.UTC(),
		UpdatedAt:   account.UpdatedAt.UTC(),
	}
}

func (d accountDocument) toDomain(id string) domain.Account {
	return domain.Account{
		ID:          id,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		Balance:     d.Balance,
		Role:        domain.AccountRole(d.Role),
		Locale:      d.Locale,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
