package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/memory"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

// --- Mocks ---

type mockRegistry struct {
	mu     sync.Mutex
	record *domain.RegistryRecord
	err    error
	calls  int
}

func (m *mockRegistry) LookupSiret(_ context.Context, _ string) (*domain.RegistryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.record, m.err
}

func (m *mockRegistry) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockVat struct {
	mu     sync.Mutex
	result *domain.VatVerification
	err    error
	panics bool
	calls  int
}

func (m *mockVat) CheckVat(_ context.Context, _, _ string) (*domain.VatVerification, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.panics {
		panic("vat client exploded")
	}
	return m.result, m.err
}

func (m *mockVat) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// syncDispatcher runs tasks inline and invokes the fallback on error or
// panic, like the production dispatcher does.
type syncDispatcher struct{}

func (syncDispatcher) Dispatch(task port.BackgroundTask) {
	ctx := context.Background()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &domain.ErrTechnical{Source: task.Name, Reason: "panic"}
			}
		}()
		return task.Run(ctx)
	}()
	if err != nil && task.Fallback != nil {
		task.Fallback(ctx, err)
	}
}

// heldDispatcher stores tasks so tests can interleave them with other calls.
type heldDispatcher struct {
	tasks []port.BackgroundTask
}

func (h *heldDispatcher) Dispatch(task port.BackgroundTask) {
	h.tasks = append(h.tasks, task)
}

func (h *heldDispatcher) RunAll(t *testing.T) {
	t.Helper()
	tasks := h.tasks
	h.tasks = nil
	for _, task := range tasks {
		syncDispatcher{}.Dispatch(task)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type mockGateway struct {
	err      error
	requests []*domain.PaymentRequest
}

func (g *mockGateway) CreateSession(_ context.Context, req *domain.PaymentRequest) (*domain.PaymentSession, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &domain.PaymentSession{Reference: "pay_" + req.OrderID, URL: "https://pay.example.test/" + req.OrderID}, nil
}

// --- Fixtures ---

const validSiret = "73282932000074"

func seedAccount(t *testing.T, store *memory.Store, id string) *domain.Account {
	t.Helper()
	now := time.Now()
	a := &domain.Account{
		ID:        id,
		Email:     id + "@example.test",
		Role:      domain.RoleUser,
		ProStatus: domain.ProStatusNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

func matchingRecord() *domain.RegistryRecord {
	created := time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.RegistryRecord{
		Siret:         validSiret,
		LegalName:     "GARAGE DU CENTRE SARL",
		Address:       "12 RUE DE LA REPUBLIQUE",
		City:          "LYON",
		PostalCode:    "69002",
		LegalFormCode: "5499",
		ActivityCode:  "45.20A",
		Active:        true,
		IsHeadOffice:  true,
		CreationDate:  &created,
	}
}

func proRequest() *domain.ProVerificationRequest {
	return &domain.ProVerificationRequest{
		CompanyName: "Garage du Centre",
		Siret:       validSiret,
		Address:     "12 rue de la République",
		City:        "Lyon",
		PostalCode:  "69002",
	}
}
