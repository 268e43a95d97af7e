package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/ratelimit"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/matching"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

var tracer = otel.Tracer("client")

const sireneSource = "sirene"

// maxBodySize bounds how much of a registry response is read.
const maxBodySize = 1 << 20

// SireneConfig holds the business registry endpoint and credentials.
type SireneConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

// SireneClient looks up establishments in the national business registry.
type SireneClient struct {
	httpClient *http.Client
	cfg        SireneConfig
	tokens     port.TokenCache
	limiter    *ratelimit.Window
	cb         *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewSireneClient creates a new SireneClient. The token cache and rate
// limiter are owned by the caller and live for the process lifetime.
func NewSireneClient(
	httpClient *http.Client,
	cfg SireneConfig,
	tokens port.TokenCache,
	limiter *ratelimit.Window,
	cb *gobreaker.CircuitBreaker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SireneClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SireneClient{
		httpClient: boundedClient(httpClient, cfg.Timeout),
		cfg:        cfg,
		tokens:     tokens,
		limiter:    limiter,
		cb:         cb,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// LookupSiret fetches and normalizes the establishment record for siret.
// Format errors and rate limiting are detected before any network call.
func (c *SireneClient) LookupSiret(ctx context.Context, siret string) (*domain.RegistryRecord, error) {
	ctx, span := tracer.Start(ctx, "SireneClient.LookupSiret")
	defer span.End()
	span.SetAttributes(attribute.String("siret", siret))

	if !matching.IsValidSiret(siret) {
		c.metrics.IncrRegistryError(sireneSource, "format")
		return nil, &domain.ErrFormat{Field: "siret", Code: "invalid_siret_format"}
	}

	if wait, ok := c.limiter.Allow(); !ok {
		c.metrics.IncrRateLimited(sireneSource)
		span.SetAttributes(attribute.String("outcome", "rate_limited"))
		return nil, &domain.ErrRateLimited{Source: sireneSource, RetryAfter: wait}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	result, err := c.cb.Execute(func() (any, error) {
		return c.lookupWithReauth(ctx, siret)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.ErrTechnical{Source: sireneSource, Reason: "circuit_open", Err: err}
	}

	outcome := outcomeOf(err)
	c.metrics.RecordRegistryCall(sireneSource, outcome, time.Since(start))
	if err != nil {
		c.metrics.IncrRegistryError(sireneSource, outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.logger.Warn("sirene lookup failed",
			zap.String("siret", siret),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, err
	}

	return result.(*domain.RegistryRecord), nil
}

// lookupWithReauth performs the lookup, re-authenticating and retrying
// exactly once when the registry answers 401.
func (c *SireneClient) lookupWithReauth(ctx context.Context, siret string) (*domain.RegistryRecord, error) {
	token, err := c.accessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	rec, status, err := c.fetch(ctx, siret, token)
	if status != http.StatusUnauthorized {
		return rec, err
	}

	c.logger.Info("sirene token rejected, re-authenticating")
	c.tokens.Invalidate(ctx)
	token, err = c.accessToken(ctx, true)
	if err != nil {
		return nil, err
	}

	rec, status, err = c.fetch(ctx, siret, token)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &domain.ErrTechnical{Source: sireneSource, Reason: "auth", Err: fmt.Errorf("status %d after re-authentication", status)}
	}
	return rec, err
}

// accessToken returns a usable bearer token, fetching a new one when the
// cache is empty or force is set. Concurrent callers may fetch twice; the
// last write wins.
func (c *SireneClient) accessToken(ctx context.Context, force bool) (string, error) {
	if !force {
		if t, ok := c.tokens.Get(ctx); ok {
			return t.AccessToken, nil
		}
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.ErrTechnical{Source: sireneSource, Reason: "auth", Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, sireneSource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", transportError(ctx, sireneSource, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.ErrTechnical{Source: sireneSource, Reason: "auth", Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	accessToken := gjson.GetBytes(body, "access_token")
	expiresIn := gjson.GetBytes(body, "expires_in")
	if !gjson.ValidBytes(body) || accessToken.String() == "" || !expiresIn.Exists() {
		return "", &domain.ErrTechnical{Source: sireneSource, Reason: "auth", Err: errors.New("malformed token response")}
	}

	t := port.Token{
		AccessToken: accessToken.String(),
		ExpiresAt:   c.now().Add(time.Duration(expiresIn.Int()) * time.Second),
	}
	c.tokens.Set(ctx, t)
	return t.AccessToken, nil
}

// fetch performs one GET /siret/{siret}. The status is returned alongside the
// mapped error so the caller can decide on re-authentication.
func (c *SireneClient) fetch(ctx context.Context, siret, token string) (*domain.RegistryRecord, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/siret/"+siret, nil)
	if err != nil {
		return nil, 0, &domain.ErrTechnical{Source: sireneSource, Reason: "request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError(ctx, sireneSource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, transportError(ctx, sireneSource, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		rec, err := parseSireneRecord(body)
		return rec, resp.StatusCode, err
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, &domain.ErrBusiness{Source: sireneSource, Code: "not_found", Message: "SIRET " + siret + " is unknown to the registry"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, &domain.ErrTechnical{Source: sireneSource, Reason: "auth", Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return nil, resp.StatusCode, &domain.ErrTechnical{Source: sireneSource, Reason: fmt.Sprintf("http_%d", resp.StatusCode)}
	}
}

// parseSireneRecord extracts the establishment fields from a lookup payload.
func parseSireneRecord(body []byte) (*domain.RegistryRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, &domain.ErrTechnical{Source: sireneSource, Reason: "malformed_response", Err: errors.New("invalid json")}
	}
	etab := gjson.GetBytes(body, "etablissement")
	siret := etab.Get("siret").String()
	if !etab.IsObject() || siret == "" {
		return nil, &domain.ErrTechnical{Source: sireneSource, Reason: "malformed_response", Err: errors.New("missing etablissement")}
	}

	ul := etab.Get("uniteLegale")
	name := ul.Get("denominationUniteLegale").String()
	if name == "" {
		name = strings.TrimSpace(ul.Get("prenom1UniteLegale").String() + " " + ul.Get("nomUniteLegale").String())
	}

	addr := etab.Get("adresseEtablissement")
	street := strings.Join(nonEmpty(
		addr.Get("numeroVoieEtablissement").String(),
		addr.Get("typeVoieEtablissement").String(),
		addr.Get("libelleVoieEtablissement").String(),
	), " ")

	rec := &domain.RegistryRecord{
		Siret:         siret,
		LegalName:     name,
		Address:       street,
		City:          addr.Get("libelleCommuneEtablissement").String(),
		PostalCode:    addr.Get("codePostalEtablissement").String(),
		LegalFormCode: ul.Get("categorieJuridiqueUniteLegale").String(),
		ActivityCode:  ul.Get("activitePrincipaleUniteLegale").String(),
		ActivityLabel: ul.Get("nomenclatureActivitePrincipaleUniteLegale").String(),
		Active:        etab.Get("periodesEtablissement.0.etatAdministratifEtablissement").String() == "A",
		IsHeadOffice:  etab.Get("etablissementSiege").Bool(),
	}
	if created := etab.Get("dateCreationEtablissement").String(); created != "" {
		if t, err := time.Parse("2006-01-02", created); err == nil {
			rec.CreationDate = &t
		}
	}
	return rec, nil
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// boundedClient returns a client whose own timeout cannot cut a call short
// of bound. The per-call context is then the only deadline.
func boundedClient(hc *http.Client, bound time.Duration) *http.Client {
	if hc == nil {
		return &http.Client{}
	}
	if hc.Timeout > 0 && hc.Timeout < bound {
		cp := *hc
		cp.Timeout = 0
		return &cp
	}
	return hc
}

// transportError classifies a failed round trip as a timeout or a network error.
func transportError(ctx context.Context, source string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ErrTechnical{Source: source, Reason: "timeout", Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &domain.ErrTechnical{Source: source, Reason: "timeout", Err: err}
	}
	return &domain.ErrTechnical{Source: source, Reason: "network", Err: err}
}

// outcomeOf labels an error for metrics.
func outcomeOf(err error) string {
	var (
		te *domain.ErrTechnical
		be *domain.ErrBusiness
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &be):
		return "business"
	case errors.As(err, &te):
		return "technical"
	default:
		return "error"
	}
}

// BreakerSuccess marks definitive registry answers as breaker successes.
func BreakerSuccess(err error) bool {
	return domain.IsBusiness(err)
}
