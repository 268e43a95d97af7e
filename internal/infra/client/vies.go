package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/resilience"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/matching"
)

const viesSource = "vies"

// vatFormats is the local pre-check per member state, applied to the number
// without its country prefix. Countries missing from the table skip it.
var vatFormats = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U\d{8}$`),
	"BE": regexp.MustCompile(`^[01]\d{9}$`),
	"BG": regexp.MustCompile(`^\d{9,10}$`),
	"CY": regexp.MustCompile(`^\d{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^\d{8,10}$`),
	"DE": regexp.MustCompile(`^\d{9}$`),
	"DK": regexp.MustCompile(`^\d{8}$`),
	"EE": regexp.MustCompile(`^\d{9}$`),
	"EL": regexp.MustCompile(`^\d{9}$`),
	"ES": regexp.MustCompile(`^[A-Z0-9]\d{7}[A-Z0-9]$`),
	"FI": regexp.MustCompile(`^\d{8}$`),
	"FR": regexp.MustCompile(`^[A-HJ-NP-Z0-9]{2}\d{9}$`),
	"HR": regexp.MustCompile(`^\d{11}$`),
	"HU": regexp.MustCompile(`^\d{8}$`),
	"IE": regexp.MustCompile(`^(\d{7}[A-W][A-I]?|\d[A-Z+*]\d{5}[A-W])$`),
	"IT": regexp.MustCompile(`^\d{11}$`),
	"LT": regexp.MustCompile(`^(\d{9}|\d{12})$`),
	"LU": regexp.MustCompile(`^\d{8}$`),
	"LV": regexp.MustCompile(`^\d{11}$`),
	"MT": regexp.MustCompile(`^\d{8}$`),
	"NL": regexp.MustCompile(`^\d{9}B\d{2}$`),
	"PL": regexp.MustCompile(`^\d{10}$`),
	"PT": regexp.MustCompile(`^\d{9}$`),
	"RO": regexp.MustCompile(`^\d{2,10}$`),
	"SE": regexp.MustCompile(`^\d{12}$`),
	"SI": regexp.MustCompile(`^\d{8}$`),
	"SK": regexp.MustCompile(`^\d{10}$`),
	"XI": regexp.MustCompile(`^(\d{9}|\d{12}|GD\d{3}|HA\d{3})$`),
}

// viesTransientUserErrors are answers where the registry itself could not
// decide, even though it replied 200.
var viesTransientUserErrors = map[string]struct{}{
	"MS_UNAVAILABLE":            {},
	"SERVICE_UNAVAILABLE":       {},
	"TIMEOUT":                   {},
	"SERVER_BUSY":               {},
	"MS_MAX_CONCURRENT_REQ":     {},
	"GLOBAL_MAX_CONCURRENT_REQ": {},
}

// ViesClient validates VAT numbers against the cross-border VAT registry.
type ViesClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewViesClient creates a new ViesClient. Retries apply to technical errors only.
func NewViesClient(httpClient *http.Client, baseURL string, timeout time.Duration, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *ViesClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ViesClient{
		httpClient: boundedClient(httpClient, timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		cb:         cb,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// HasPlausibleVatFormat runs the advisory per-country format check.
func HasPlausibleVatFormat(country, number string) bool {
	re, ok := vatFormats[country]
	if !ok {
		return number != ""
	}
	return re.MatchString(number)
}

// CheckVat validates the VAT number. Only an invalid country code is returned
// as an error; registry outcomes are reported in the VatVerification.
func (c *ViesClient) CheckVat(ctx context.Context, country, number string) (*domain.VatVerification, error) {
	ctx, span := tracer.Start(ctx, "ViesClient.CheckVat")
	defer span.End()

	country, number = matching.NormalizeVat(country, number)
	span.SetAttributes(attribute.String("vat.country", country))

	if !matching.IsValidCountryCode(country) {
		c.metrics.IncrRegistryError(viesSource, "format")
		return nil, &domain.ErrFormat{Field: "country", Code: "invalid_country_code"}
	}
	if !HasPlausibleVatFormat(country, number) {
		c.metrics.IncrRegistryError(viesSource, "business")
		return &domain.VatVerification{BusinessError: "invalid_format"}, nil
	}

	start := time.Now()
	result, err := c.cb.Execute(func() (any, error) {
		var res *domain.VatVerification
		innerErr := resilience.RetryIf(ctx, c.cfg, domain.IsTechnical, func() error {
			var err error
			res, err = c.call(ctx, country, number)
			return err
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.ErrTechnical{Source: viesSource, Reason: "circuit_open", Err: err}
	}

	outcome := outcomeOf(err)
	c.metrics.RecordRegistryCall(viesSource, outcome, time.Since(start))
	if err == nil {
		return result.(*domain.VatVerification), nil
	}

	c.metrics.IncrRegistryError(viesSource, outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	var be *domain.ErrBusiness
	if errors.As(err, &be) {
		return &domain.VatVerification{BusinessError: be.Code}, nil
	}
	var te *domain.ErrTechnical
	if errors.As(err, &te) {
		c.logger.Warn("vies check failed", zap.String("country", country), zap.String("reason", te.Reason), zap.Error(err))
		return &domain.VatVerification{TechnicalError: te.Reason}, nil
	}
	c.logger.Warn("vies check failed", zap.String("country", country), zap.Error(err))
	return &domain.VatVerification{TechnicalError: err.Error()}, nil
}

// call performs one bounded registry request and maps the answer to a typed error.
func (c *ViesClient) call(ctx context.Context, country, number string) (*domain.VatVerification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/vat/%s", c.baseURL, country, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.ErrTechnical{Source: viesSource, Reason: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, viesSource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(ctx, viesSource, err)
	}

	// Only a 200 body carries a decision; every other status is technical.
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ErrTechnical{Source: viesSource, Reason: fmt.Sprintf("http_%d", resp.StatusCode)}
	}
	return parseViesBody(body)
}

// parseViesBody reads the validity flag from a 200 answer. The body, not
// the status code, decides the outcome.
func parseViesBody(body []byte) (*domain.VatVerification, error) {
	if !gjson.ValidBytes(body) {
		return nil, &domain.ErrTechnical{Source: viesSource, Reason: "malformed_response"}
	}
	userError := gjson.GetBytes(body, "userError").String()
	if _, ok := viesTransientUserErrors[userError]; ok {
		return nil, &domain.ErrTechnical{Source: viesSource, Reason: strings.ToLower(userError)}
	}

	isValid := gjson.GetBytes(body, "isValid")
	if isValid.Type != gjson.True && isValid.Type != gjson.False {
		return nil, &domain.ErrTechnical{Source: viesSource, Reason: "malformed_response"}
	}
	if !isValid.Bool() {
		if userError == "INVALID_INPUT" {
			return nil, &domain.ErrBusiness{Source: viesSource, Code: "invalid_input"}
		}
		return nil, &domain.ErrBusiness{Source: viesSource, Code: "invalid_vat_number"}
	}

	return &domain.VatVerification{
		Valid:          true,
		CompanyName:    cleanViesField(gjson.GetBytes(body, "name").String()),
		CompanyAddress: cleanViesField(gjson.GetBytes(body, "address").String()),
	}, nil
}

// cleanViesField drops the "---" placeholder used for undisclosed data.
func cleanViesField(s string) string {
	s = strings.TrimSpace(s)
	if s == "---" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}
