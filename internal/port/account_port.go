package port

import (
	"context"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// AccountStore handles account data operations.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)

	// UpdateAccount loads the account under a row lock, lets mutate change it
	// and persists the result in the same transaction. An error from mutate
	// aborts the write and is returned as is.
	UpdateAccount(ctx context.Context, accountID string, mutate func(*domain.Account) error) (*domain.Account, error)

	// UpdateCompany merges patch into the stored company profile without
	// touching other fields. guard runs inside the transaction before the write.
	UpdateCompany(ctx context.Context, accountID string, patch domain.CompanyPatch, guard func(*domain.Account) error) (*domain.Account, error)
}
