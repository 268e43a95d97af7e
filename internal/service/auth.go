// Package service holds the shop use cases: authentication, professional
// verification, catalog administration, cart and checkout.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const (
	minPasswordLength = 8
	bcryptCost        = bcrypt.DefaultCost
)

// AuthService orchestrates registration and login.
type AuthService struct {
	store     port.AccountStore
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.AccountStore, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// ============================================================
// Register: POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}

	account, err := s.newAccount(email, req.Password, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.String("account_id", account.ID))
	return &domain.RegisterResponse{AccountID: account.ID, Message: "account created"}, nil
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	span.SetAttributes(attribute.String("account.id", account.ID))

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: invalid password", zap.String("account_id", account.ID))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	token, err := s.signAccessToken(account.ID, account.Role)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("account logged in", zap.String("account_id", account.ID))
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		AccountID:   account.ID,
		Role:        account.Role,
	}, nil
}

// ============================================================
// EnsureAdmin: startup bootstrap
// ============================================================

// EnsureAdmin creates the admin account, or promotes an existing account with
// the same email. The password of an existing account is left unchanged.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.EnsureAdmin")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	existing, err := s.store.GetAccountByEmail(ctx, email)
	var nf *domain.ErrNotFound
	switch {
	case err == nil:
		if existing.Role == domain.RoleAdmin {
			return nil
		}
		if _, err := s.store.UpdateAccount(ctx, existing.ID, func(a *domain.Account) error {
			a.Role = domain.RoleAdmin
			return nil
		}); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		s.logger.Info("account promoted to admin", zap.String("account_id", existing.ID))
		return nil
	case !errors.As(err, &nf):
		return fmt.Errorf("get admin account: %w", err)
	}

	if len(password) < minPasswordLength {
		return &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	account, err := s.newAccount(email, password, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	s.logger.Info("admin account created", zap.String("account_id", account.ID))
	return nil
}

func (s *AuthService) newAccount(email, password string, role domain.Role) (*domain.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now()
	return &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		ProStatus:    domain.ProStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || !strings.Contains(host, ".") || strings.ContainsAny(email, " \t") || strings.Contains(host, "@") {
		return "", &domain.ErrValidation{Field: "email", Message: "invalid email address"}
	}
	return email, nil
}
