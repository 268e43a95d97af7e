package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/client"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/ratelimit"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/resilience"
)

const sirenePayload = `{
  "header": {"statut": 200},
  "etablissement": {
    "siret": "12345678901234",
    "dateCreationEtablissement": "2015-03-01",
    "etablissementSiege": true,
    "uniteLegale": {
      "denominationUniteLegale": "GARAGE MARTIN SARL",
      "categorieJuridiqueUniteLegale": "5499",
      "activitePrincipaleUniteLegale": "45.20A",
      "nomenclatureActivitePrincipaleUniteLegale": "NAFRev2"
    },
    "adresseEtablissement": {
      "numeroVoieEtablissement": "12",
      "typeVoieEtablissement": "RUE",
      "libelleVoieEtablissement": "DE LA PAIX",
      "codePostalEtablissement": "75002",
      "libelleCommuneEtablissement": "PARIS"
    },
    "periodesEtablissement": [{"etatAdministratifEtablissement": "A"}]
  }
}`

// fakeSirene serves /token and /siret/{id}. lookup decides each lookup answer
// from the 1-based call number.
type fakeSirene struct {
	tokenCalls  atomic.Int32
	lookupCalls atomic.Int32
	lookup      func(call int32, auth string) (int, string)
}

func (f *fakeSirene) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" || r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + string('0'+rune(n)) + `","expires_in":3600}`))
	})
	mux.HandleFunc("/siret/", func(w http.ResponseWriter, r *http.Request) {
		n := f.lookupCalls.Add(1)
		status, body := f.lookup(n, r.Header.Get("Authorization"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	return mux
}

func newSirene(t *testing.T, baseURL string, limiter *ratelimit.Window, timeout time.Duration) (*client.SireneClient, *client.MemoryTokenCache) {
	t.Helper()
	tokens := client.NewMemoryTokenCache()
	t.Cleanup(tokens.Close)
	if limiter == nil {
		limiter = ratelimit.NewWindow(30, time.Minute)
	}
	cb := resilience.NewCircuitBreaker("sirene-test", resilience.WithSuccessClassifier(client.BreakerSuccess))
	c := client.NewSireneClient(http.DefaultClient, client.SireneConfig{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Timeout:        timeout,
	}, tokens, limiter, cb, observability.NewMetrics(), zap.NewNop())
	return c, tokens
}

func TestSirene_InvalidFormatMakesNoCall(t *testing.T) {
	fake := &fakeSirene{lookup: func(int32, string) (int, string) { return http.StatusOK, sirenePayload }}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	limiter := ratelimit.NewWindow(30, time.Minute)
	c, _ := newSirene(t, srv.URL, limiter, time.Second)

	for _, id := range []string{"", "1234567890123", "123456789012345", "1234567890123a", "１２３４５６７８９０１２３４"} {
		_, err := c.LookupSiret(context.Background(), id)
		var fe *domain.ErrFormat
		require.True(t, errors.As(err, &fe), "id %q: %v", id, err)
	}

	assert.Zero(t, fake.tokenCalls.Load())
	assert.Zero(t, fake.lookupCalls.Load())
	assert.Zero(t, limiter.InFlight())
}

func TestSirene_LookupParsesRecordAndCachesToken(t *testing.T) {
	fake := &fakeSirene{lookup: func(_ int32, auth string) (int, string) {
		if auth != "Bearer tok-1" {
			return http.StatusUnauthorized, ""
		}
		return http.StatusOK, sirenePayload
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newSirene(t, srv.URL, nil, time.Second)

	rec, err := c.LookupSiret(context.Background(), "12345678901234")
	require.NoError(t, err)
	assert.Equal(t, "GARAGE MARTIN SARL", rec.LegalName)
	assert.Equal(t, "12 RUE DE LA PAIX", rec.Address)
	assert.Equal(t, "PARIS", rec.City)
	assert.Equal(t, "75002", rec.PostalCode)
	assert.Equal(t, "5499", rec.LegalFormCode)
	assert.Equal(t, "45.20A", rec.ActivityCode)
	assert.True(t, rec.Active)
	assert.True(t, rec.IsHeadOffice)
	require.NotNil(t, rec.CreationDate)
	assert.Equal(t, 2015, rec.CreationDate.Year())

	_, err = c.LookupSiret(context.Background(), "12345678901234")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
	assert.Equal(t, int32(2), fake.lookupCalls.Load())
}

func TestSirene_ReauthenticatesOnceOn401(t *testing.T) {
	fake := &fakeSirene{lookup: func(call int32, _ string) (int, string) {
		if call == 1 {
			return http.StatusUnauthorized, ""
		}
		return http.StatusOK, sirenePayload
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, tokens := newSirene(t, srv.URL, nil, time.Second)

	_, err := c.LookupSiret(context.Background(), "12345678901234")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
	assert.Equal(t, int32(2), fake.lookupCalls.Load())

	cached, ok := tokens.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, "tok-2", cached.AccessToken)
}

func TestSirene_AuthErrorAfterRetry(t *testing.T) {
	fake := &fakeSirene{lookup: func(int32, string) (int, string) { return http.StatusUnauthorized, "" }}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newSirene(t, srv.URL, nil, time.Second)

	_, err := c.LookupSiret(context.Background(), "12345678901234")
	var te *domain.ErrTechnical
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "auth", te.Reason)
	assert.Equal(t, int32(2), fake.lookupCalls.Load())
}

func TestSirene_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		business bool
		reason   string
	}{
		{"not found is business", http.StatusNotFound, `{}`, true, ""},
		{"forbidden is auth", http.StatusForbidden, ``, false, "auth"},
		{"server error is technical", http.StatusBadGateway, ``, false, "http_502"},
		{"malformed json", http.StatusOK, `{"etablissement":`, false, "malformed_response"},
		{"missing establishment", http.StatusOK, `{"header":{}}`, false, "malformed_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSirene{lookup: func(int32, string) (int, string) { return tt.status, tt.body }}
			srv := httptest.NewServer(fake.handler())
			defer srv.Close()

			c, _ := newSirene(t, srv.URL, nil, time.Second)
			_, err := c.LookupSiret(context.Background(), "12345678901234")
			require.Error(t, err)

			if tt.business {
				var be *domain.ErrBusiness
				require.True(t, errors.As(err, &be), "got %v", err)
				assert.Equal(t, "not_found", be.Code)
				return
			}
			var te *domain.ErrTechnical
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, tt.reason, te.Reason)
		})
	}
}

func TestSirene_TimeoutIsTechnical(t *testing.T) {
	fake := &fakeSirene{lookup: func(int32, string) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, sirenePayload
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newSirene(t, srv.URL, nil, 50*time.Millisecond)

	_, err := c.LookupSiret(context.Background(), "12345678901234")
	var te *domain.ErrTechnical
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "timeout", te.Reason)
}

func TestSirene_CallBoundedByRegistryTimeoutNotClientTimeout(t *testing.T) {
	fake := &fakeSirene{lookup: func(int32, string) (int, string) {
		time.Sleep(300 * time.Millisecond)
		return http.StatusOK, sirenePayload
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tokens := client.NewMemoryTokenCache()
	t.Cleanup(tokens.Close)
	cb := resilience.NewCircuitBreaker("sirene-short-client", resilience.WithSuccessClassifier(client.BreakerSuccess))
	c := client.NewSireneClient(&http.Client{Timeout: 100 * time.Millisecond}, client.SireneConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Timeout:        1500 * time.Millisecond,
	}, tokens, ratelimit.NewWindow(30, time.Minute), cb, observability.NewMetrics(), zap.NewNop())

	rec, err := c.LookupSiret(context.Background(), "12345678901234")
	require.NoError(t, err)
	assert.Equal(t, "GARAGE MARTIN SARL", rec.LegalName)
}

func TestSirene_RateLimitedFailsFast(t *testing.T) {
	fake := &fakeSirene{lookup: func(int32, string) (int, string) { return http.StatusOK, sirenePayload }}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newSirene(t, srv.URL, ratelimit.NewWindow(1, time.Minute), time.Second)

	_, err := c.LookupSiret(context.Background(), "12345678901234")
	require.NoError(t, err)

	_, err = c.LookupSiret(context.Background(), "12345678901234")
	var rl *domain.ErrRateLimited
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.True(t, rl.RetryAfter > 0)
	assert.Equal(t, int32(1), fake.lookupCalls.Load())
}

func TestSirene_OpenBreakerIsTechnical(t *testing.T) {
	fake := &fakeSirene{lookup: func(int32, string) (int, string) { return http.StatusInternalServerError, "" }}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newSirene(t, srv.URL, nil, time.Second)
	for i := 0; i < 5; i++ {
		_, _ = c.LookupSiret(context.Background(), "12345678901234")
	}
	calls := fake.lookupCalls.Load()

	_, err := c.LookupSiret(context.Background(), "12345678901234")
	var te *domain.ErrTechnical
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "circuit_open", te.Reason)
	assert.Equal(t, calls, fake.lookupCalls.Load())
}
