// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// BusinessRegistry looks up an establishment by its 14-digit SIRET.
type BusinessRegistry interface {
	LookupSiret(ctx context.Context, siret string) (*domain.RegistryRecord, error)
}

// VatRegistry validates a VAT number against the cross-border registry.
type VatRegistry interface {
	CheckVat(ctx context.Context, country, number string) (*domain.VatVerification, error)
}

// Token is a cached registry bearer credential.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TokenCache holds the registry credential for the process lifetime.
// Implementations must be safe for concurrent use; last writer wins.
type TokenCache interface {
	Get(ctx context.Context) (*Token, bool)
	Set(ctx context.Context, token Token)
	Invalidate(ctx context.Context)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// EventPublisher publishes domain events. Publishing is best effort and
// never fails the operation that emitted the event.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
	Close()
}

// PaymentGateway hands a payment request to the payment provider.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentSession, error)
}

// BackgroundTask is a unit of detached work. Fallback runs when Run fails or
// panics and writes the safe state back to the store.
type BackgroundTask struct {
	Name      string
	AccountID string
	Run       func(ctx context.Context) error
	Fallback  func(ctx context.Context, cause error)
}

// TaskDispatcher runs background tasks outside the request lifecycle.
type TaskDispatcher interface {
	Dispatch(task BackgroundTask)
}
