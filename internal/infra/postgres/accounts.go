package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

var accountColumns = []string{
	"id",
	"email",
	"password_hash",
	"role",
	"is_pro",
	"pro_status",
	"verification_mode",
	"decision_source",
	"decision_at",
	"reviewed_by_admin_id",
	"last_verification_error",
	"has_company",
	"company_name",
	"company_legal_name",
	"company_siret",
	"company_address",
	"company_city",
	"company_postal_code",
	"company_country",
	"vat_number",
	"vat_status",
	"vat_validation_date",
	"vat_registered_name",
	"vat_registered_address",
	"legal_form_code",
	"activity_code",
	"is_head_office",
	"company_creation_date",
	"verification_warnings",
	"created_at",
	"updated_at",
}

// CreateAccount inserts a new account row.
func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	values := accountValues(a)
	query := s.builder.Insert("accounts").
		Columns(accountColumns...).
		Values(values...)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrConflict{Message: "email already registered"}
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.selectAccount(ctx, squirrel.Eq{"id": id}, id, false)
}

// GetAccountByEmail retrieves an account by case-insensitive email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.selectAccount(ctx, squirrel.Expr("lower(email) = ?", strings.ToLower(email)), email, false)
}

func (s *Store) selectAccount(ctx context.Context, where squirrel.Sqlizer, ref string, forUpdate bool) (*domain.Account, error) {
	query := s.builder.Select(accountColumns...).From("accounts").Where(where)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	a, err := scanAccount(s.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "account", ID: ref}
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

// UpdateAccount locks the row, applies mutate and writes the whole account
// back in one transaction.
func (s *Store) UpdateAccount(ctx context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error) {
	var out *domain.Account
	err := s.inTx(ctx, func(tx *Store) error {
		current, err := tx.selectAccount(ctx, squirrel.Eq{"id": id}, id, true)
		if err != nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		current.ID = id
		current.UpdatedAt = tx.now()

		set := make(map[string]any, len(accountColumns))
		values := accountValues(current)
		for i, col := range accountColumns {
			if col == "id" || col == "created_at" {
				continue
			}
			set[col] = values[i]
		}

		stmt, args, err := tx.builder.Update("accounts").
			SetMap(set).
			Where(squirrel.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update account sql: %w", err)
		}
		if _, err := tx.exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateCompany writes only the columns present in patch after guard accepts
// the locked row.
func (s *Store) UpdateCompany(ctx context.Context, id string, patch domain.CompanyPatch, guard func(*domain.Account) error) (*domain.Account, error) {
	var out *domain.Account
	err := s.inTx(ctx, func(tx *Store) error {
		current, err := tx.selectAccount(ctx, squirrel.Eq{"id": id}, id, true)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(current.Clone()); err != nil {
				return err
			}
		}

		set := patch.Columns()
		set["has_company"] = true
		set["updated_at"] = tx.now()

		stmt, args, err := tx.builder.Update("accounts").
			SetMap(set).
			Where(squirrel.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update company sql: %w", err)
		}
		if _, err := tx.exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("update company: %w", err)
		}

		out, err = tx.selectAccount(ctx, squirrel.Eq{"id": id}, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func accountValues(a *domain.Account) []any {
	c := a.Company
	hasCompany := c != nil
	if c == nil {
		c = &domain.Company{VatStatus: domain.VatStatusNone}
	}
	vatStatus := c.VatStatus
	if vatStatus == "" {
		vatStatus = domain.VatStatusNone
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	return []any{
		a.ID,
		a.Email,
		a.PasswordHash,
		string(a.Role),
		a.IsPro,
		string(a.ProStatus),
		string(a.VerificationMode),
		string(a.DecisionSource),
		a.DecisionAt,
		a.ReviewedByAdminID,
		a.LastVerificationError,
		hasCompany,
		c.Name,
		c.LegalName,
		c.Siret,
		c.Address,
		c.City,
		c.PostalCode,
		c.Country,
		c.VatNumber,
		string(vatStatus),
		c.VatValidationDate,
		c.VatRegisteredName,
		c.VatRegisteredAddress,
		c.LegalFormCode,
		c.ActivityCode,
		c.IsHeadOffice,
		c.CreationDate,
		c.VerificationWarnings,
		created,
		updated,
	}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                                        domain.Account
		c                                        domain.Company
		role, proStatus, mode, source, vatStatus string
		hasCompany                               bool
	)

	if err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&role,
		&a.IsPro,
		&proStatus,
		&mode,
		&source,
		&a.DecisionAt,
		&a.ReviewedByAdminID,
		&a.LastVerificationError,
		&hasCompany,
		&c.Name,
		&c.LegalName,
		&c.Siret,
		&c.Address,
		&c.City,
		&c.PostalCode,
		&c.Country,
		&c.VatNumber,
		&vatStatus,
		&c.VatValidationDate,
		&c.VatRegisteredName,
		&c.VatRegisteredAddress,
		&c.LegalFormCode,
		&c.ActivityCode,
		&c.IsHeadOffice,
		&c.CreationDate,
		&c.VerificationWarnings,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	a.Role = domain.Role(role)
	a.ProStatus = domain.ProStatus(proStatus)
	a.VerificationMode = domain.VerificationMode(mode)
	a.DecisionSource = domain.DecisionSource(source)
	if hasCompany {
		c.VatStatus = domain.VatStatus(vatStatus)
		a.Company = &c
	}
	return &a, nil
}
