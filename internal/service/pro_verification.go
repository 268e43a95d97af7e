package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/matching"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

var verificationTracer = otel.Tracer("service/verification")

const (
	taskAutoCheck = "pro_auto_check"
	taskVatCheck  = "vat_check"

	defaultVatCountry = "FR"
)

// ProVerificationService drives the professional account lifecycle:
// submission, automatic registry decision, manual review and the VAT check.
type ProVerificationService struct {
	accounts port.AccountStore
	registry port.BusinessRegistry
	vat      port.VatRegistry
	tasks    port.TaskDispatcher
	events   port.EventPublisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewProVerificationService creates a new verification service.
func NewProVerificationService(
	accounts port.AccountStore,
	registry port.BusinessRegistry,
	vat port.VatRegistry,
	tasks port.TaskDispatcher,
	events port.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ProVerificationService {
	return &ProVerificationService{
		accounts: accounts,
		registry: registry,
		vat:      vat,
		tasks:    tasks,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// ============================================================
// Submit: POST /v1/account/pro-verification
// ============================================================

// Submit records the declared company and moves the account to pending. The
// registry and VAT checks run in the background; the returned account shows
// the state before either completes.
func (s *ProVerificationService) Submit(ctx context.Context, accountID string, req *domain.ProVerificationRequest) (*domain.Account, error) {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	req = normalizeRequest(req)
	if req.CompanyName == "" {
		return nil, &domain.ErrValidation{Field: "companyName", Message: "company name is required"}
	}
	if req.Siret == "" && req.VatNumber == "" {
		return nil, &domain.ErrValidation{Field: "siret", Message: "a SIRET or a VAT number is required"}
	}
	if req.Siret != "" && !matching.IsValidSiret(req.Siret) {
		return nil, &domain.ErrFormat{Field: "siret", Code: "invalid_siret_format"}
	}
	if req.VatNumber != "" && !matching.IsValidCountryCode(req.Country) {
		return nil, &domain.ErrFormat{Field: "country", Code: "invalid_country_code"}
	}

	mode := domain.VerificationAuto
	if req.Siret == "" {
		mode = domain.VerificationManual
	}

	account, err := s.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		if a.ProStatus == domain.ProStatusVerified {
			return &domain.ErrPrecondition{Reason: "account is already verified"}
		}
		if a.HasDecision() {
			return &domain.ErrPrecondition{Reason: "decision already taken"}
		}

		a.ProStatus = domain.ProStatusPending
		a.IsPro = false
		a.VerificationMode = mode
		a.DecisionSource = domain.DecisionNone
		a.DecisionAt = nil
		a.ReviewedByAdminID = ""
		a.LastVerificationError = ""
		a.Company = &domain.Company{
			Name:       req.CompanyName,
			Siret:      req.Siret,
			Address:    req.Address,
			City:       req.City,
			PostalCode: req.PostalCode,
			Country:    req.Country,
			VatNumber:  req.VatNumber,
			VatStatus:  domain.VatStatusNone,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pro verification submitted",
		zap.String("account_id", accountID),
		zap.String("mode", string(mode)),
		zap.Bool("has_siret", req.Siret != ""),
		zap.Bool("has_vat", req.VatNumber != ""),
	)
	s.publish(ctx, domain.EventProVerificationSubmitted, accountID, map[string]any{
		"mode":   string(mode),
		"hasVat": req.VatNumber != "",
	})

	if req.Siret != "" {
		s.dispatchAutoCheck(accountID, req.Siret)
	} else {
		s.metrics.IncrVerificationOutcome(string(domain.DecisionManual), "routed")
		s.publish(ctx, domain.EventProVerificationManual, accountID, map[string]any{
			"reason": "no business identifier supplied",
		})
	}
	if req.VatNumber != "" {
		s.dispatchVatCheck(accountID, req.Country, req.VatNumber)
	}

	return account, nil
}

func normalizeRequest(req *domain.ProVerificationRequest) *domain.ProVerificationRequest {
	out := *req
	out.CompanyName = strings.TrimSpace(out.CompanyName)
	out.Siret = strings.ReplaceAll(strings.TrimSpace(out.Siret), " ", "")
	out.Address = strings.TrimSpace(out.Address)
	out.City = strings.TrimSpace(out.City)
	out.PostalCode = strings.TrimSpace(out.PostalCode)
	out.VatNumber = strings.TrimSpace(out.VatNumber)
	out.Country = strings.ToUpper(strings.TrimSpace(out.Country))
	if out.VatNumber != "" {
		if out.Country == "" {
			out.Country = vatCountry(out.VatNumber)
		}
		out.Country, _ = matching.NormalizeVat(out.Country, out.VatNumber)
	}
	return &out
}

// vatCountry takes the country from a prefixed VAT number such as
// "FR12345678901", defaulting to France.
func vatCountry(vatNumber string) string {
	v := strings.ToUpper(vatNumber)
	if len(v) >= 2 && v[0] >= 'A' && v[0] <= 'Z' && v[1] >= 'A' && v[1] <= 'Z' {
		return v[:2]
	}
	return defaultVatCountry
}

// ============================================================
// Automatic registry check (background)
// ============================================================

func (s *ProVerificationService) dispatchAutoCheck(accountID, siret string) {
	s.tasks.Dispatch(port.BackgroundTask{
		Name:      taskAutoCheck,
		AccountID: accountID,
		Run: func(ctx context.Context) error {
			return s.runAutoCheck(ctx, accountID, siret)
		},
		Fallback: func(ctx context.Context, cause error) {
			if err := s.routeToManual(ctx, accountID, siret, "automatic check failed: "+cause.Error()); err != nil {
				s.logger.Error("failed to route verification to manual review",
					zap.String("account_id", accountID),
					zap.Error(err),
				)
			}
		},
	})
}

// runAutoCheck looks the SIRET up and finalizes the decision. A technical
// failure never decides: the request goes to manual review instead.
func (s *ProVerificationService) runAutoCheck(ctx context.Context, accountID, siret string) error {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.runAutoCheck")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	record, err := s.registry.LookupSiret(ctx, siret)
	if err != nil {
		var be *domain.ErrBusiness
		if errors.As(err, &be) {
			return s.finalizeAutomatic(ctx, accountID, siret, &domain.VerificationResult{
				Valid: false,
				Error: "business identifier not found in the registry",
			})
		}
		return s.routeToManual(ctx, accountID, siret, technicalReason(err))
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	result := matching.Evaluate(matching.FromCompany(account.Company), record, s.now())
	return s.finalizeAutomatic(ctx, accountID, siret, result)
}

// finalizeAutomatic is the automatic terminal write. It shares only the
// write-once guard with the manual decision.
func (s *ProVerificationService) finalizeAutomatic(ctx context.Context, accountID, siret string, result *domain.VerificationResult) error {
	now := s.now()
	account, err := s.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		if err := checkAutomaticStillApplies(a, siret); err != nil {
			return err
		}
		if r := result.Record; r != nil {
			headOffice := r.IsHeadOffice
			a.Company.LegalName = r.LegalName
			a.Company.LegalFormCode = r.LegalFormCode
			a.Company.ActivityCode = r.ActivityCode
			a.Company.IsHeadOffice = &headOffice
			a.Company.CreationDate = r.CreationDate
		}
		a.Company.VerificationWarnings = result.Warnings
		a.ApplyDecision(result.Valid, domain.DecisionAuto, now, "")
		a.LastVerificationError = result.Error
		return nil
	})
	if err != nil {
		return s.discardIfStale(accountID, err)
	}

	s.metrics.IncrVerificationOutcome(string(domain.DecisionAuto), string(account.ProStatus))
	s.logger.Info("pro verification decided automatically",
		zap.String("account_id", accountID),
		zap.String("status", string(account.ProStatus)),
		zap.String("reason", result.Error),
		zap.Strings("warnings", result.Warnings),
	)
	s.publish(ctx, domain.EventProVerificationDecided, accountID, map[string]any{
		"status": string(account.ProStatus),
		"source": string(domain.DecisionAuto),
		"reason": result.Error,
	})
	return nil
}

// routeToManual leaves the account pending and hands it to an admin.
func (s *ProVerificationService) routeToManual(ctx context.Context, accountID, siret, reason string) error {
	_, err := s.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		if err := checkAutomaticStillApplies(a, siret); err != nil {
			return err
		}
		a.VerificationMode = domain.VerificationManual
		a.LastVerificationError = reason
		return nil
	})
	if err != nil {
		return s.discardIfStale(accountID, err)
	}

	s.metrics.IncrVerificationOutcome(string(domain.DecisionAuto), "routed")
	s.logger.Warn("pro verification routed to manual review",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
	)
	s.publish(ctx, domain.EventProVerificationManual, accountID, map[string]any{"reason": reason})
	return nil
}

// checkAutomaticStillApplies rejects automatic writes that lost a race with a
// manual decision or a newer submission.
func checkAutomaticStillApplies(a *domain.Account, siret string) error {
	if err := a.CheckDecidable(); err != nil {
		return err
	}
	if a.VerificationMode != domain.VerificationAuto {
		return &domain.ErrPrecondition{Reason: "verification is not in automatic mode"}
	}
	if a.Company == nil || a.Company.Siret != siret {
		return &domain.ErrPrecondition{Reason: "business identifier changed"}
	}
	return nil
}

func (s *ProVerificationService) discardIfStale(accountID string, err error) error {
	var pe *domain.ErrPrecondition
	if errors.As(err, &pe) {
		s.logger.Info("automatic verification result discarded",
			zap.String("account_id", accountID),
			zap.String("reason", pe.Reason),
		)
		return nil
	}
	return err
}

func technicalReason(err error) string {
	var (
		te *domain.ErrTechnical
		re *domain.ErrRateLimited
	)
	switch {
	case errors.As(err, &te):
		return "registry unavailable: " + te.Reason
	case errors.As(err, &re):
		return "registry rate limit reached"
	default:
		return "registry check failed: " + err.Error()
	}
}

// ============================================================
// VAT sub-flow (background)
// ============================================================

func (s *ProVerificationService) dispatchVatCheck(accountID, country, number string) {
	s.tasks.Dispatch(port.BackgroundTask{
		Name:      taskVatCheck,
		AccountID: accountID,
		Run: func(ctx context.Context) error {
			return s.runVatCheck(ctx, accountID, country, number)
		},
		Fallback: func(ctx context.Context, cause error) {
			if err := s.writeVatOutcome(ctx, accountID, number, domain.VatStatusPendingManual, nil); err != nil {
				s.logger.Error("failed to record vat fallback",
					zap.String("account_id", accountID),
					zap.NamedError("cause", cause),
					zap.Error(err),
				)
			}
		},
	})
}

func (s *ProVerificationService) runVatCheck(ctx context.Context, accountID, country, number string) error {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.runVatCheck")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.String("vat.country", country))

	res, err := s.vat.CheckVat(ctx, country, number)
	status := vatStatusOf(res, err)
	if err != nil {
		s.logger.Warn("vat check returned an error",
			zap.String("account_id", accountID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	return s.writeVatOutcome(ctx, accountID, number, status, res)
}

// vatStatusOf maps a registry answer to the stored status. Only a definitive
// registry answer validates or rejects; anything uncertain goes to manual.
func vatStatusOf(res *domain.VatVerification, err error) domain.VatStatus {
	var fe *domain.ErrFormat
	switch {
	case errors.As(err, &fe):
		return domain.VatStatusRejected
	case err != nil || res == nil:
		return domain.VatStatusPendingManual
	case res.Valid:
		return domain.VatStatusValidated
	case res.BusinessError != "":
		return domain.VatStatusRejected
	default:
		return domain.VatStatusPendingManual
	}
}

func (s *ProVerificationService) writeVatOutcome(ctx context.Context, accountID, number string, status domain.VatStatus, res *domain.VatVerification) error {
	now := s.now()
	patch := domain.CompanyPatch{VatStatus: mo.Some(status)}
	if status == domain.VatStatusPendingManual {
		patch.VatValidationDate = mo.Some[*time.Time](nil)
	} else {
		patch.VatValidationDate = mo.Some(&now)
	}
	if res != nil && res.Valid {
		patch.VatRegisteredName = mo.Some(res.CompanyName)
		patch.VatRegisteredAddress = mo.Some(res.CompanyAddress)
	}

	_, err := s.accounts.UpdateCompany(ctx, accountID, patch, func(a *domain.Account) error {
		if a.Company == nil || a.Company.VatNumber != number {
			return &domain.ErrPrecondition{Reason: "vat number changed"}
		}
		return nil
	})
	if err != nil {
		return s.discardIfStale(accountID, err)
	}

	reason := ""
	if res != nil {
		reason = res.BusinessError + res.TechnicalError
	}
	s.metrics.IncrVatOutcome(string(status))
	s.logger.Info("vat verification completed",
		zap.String("account_id", accountID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
	s.publish(ctx, domain.EventVatVerificationCompleted, accountID, map[string]any{
		"status": string(status),
		"reason": reason,
	})
	return nil
}

// ============================================================
// Admin actions
// ============================================================

// ManualDecision finalizes a pending verification on behalf of an admin.
func (s *ProVerificationService) ManualDecision(ctx context.Context, adminID, accountID string, req *domain.ProDecisionRequest) (*domain.Account, error) {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.ManualDecision")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Bool("approved", req.Approved))

	now := s.now()
	account, err := s.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		if err := a.CheckDecidable(); err != nil {
			return err
		}
		a.ApplyDecision(req.Approved, domain.DecisionManual, now, adminID)
		if req.Approved {
			a.LastVerificationError = ""
		} else if reason := strings.TrimSpace(req.Reason); reason != "" {
			a.LastVerificationError = reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrVerificationOutcome(string(domain.DecisionManual), string(account.ProStatus))
	s.logger.Info("pro verification decided manually",
		zap.String("account_id", accountID),
		zap.String("admin_id", adminID),
		zap.String("status", string(account.ProStatus)),
	)
	s.publish(ctx, domain.EventProVerificationDecided, accountID, map[string]any{
		"status":     string(account.ProStatus),
		"source":     string(domain.DecisionManual),
		"reviewedBy": adminID,
	})
	return account, nil
}

// RetryAutoCheck sends a manual-review request back through the automatic
// registry check.
func (s *ProVerificationService) RetryAutoCheck(ctx context.Context, adminID, accountID string) (*domain.Account, error) {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.RetryAutoCheck")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	account, err := s.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		if err := a.CheckRetryable(); err != nil {
			return err
		}
		a.VerificationMode = domain.VerificationAuto
		a.LastVerificationError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("automatic verification retried",
		zap.String("account_id", accountID),
		zap.String("admin_id", adminID),
	)
	s.dispatchAutoCheck(accountID, account.Company.Siret)
	return account, nil
}

// ManualVatDecision settles a VAT check that the registry could not answer.
func (s *ProVerificationService) ManualVatDecision(ctx context.Context, adminID, accountID string, req *domain.VatDecisionRequest) (*domain.Account, error) {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.ManualVatDecision")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Bool("approved", req.Approved))

	status := domain.VatStatusRejected
	if req.Approved {
		status = domain.VatStatusValidated
	}
	now := s.now()

	account, err := s.accounts.UpdateCompany(ctx, accountID, domain.CompanyPatch{
		VatStatus:         mo.Some(status),
		VatValidationDate: mo.Some(&now),
	}, func(a *domain.Account) error {
		if a.Company == nil || a.Company.VatStatus != domain.VatStatusPendingManual {
			return &domain.ErrPrecondition{Reason: "vat check is not awaiting manual review"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrVatOutcome(string(status))
	s.logger.Info("vat verification decided manually",
		zap.String("account_id", accountID),
		zap.String("admin_id", adminID),
		zap.String("status", string(status)),
	)
	s.publish(ctx, domain.EventVatVerificationCompleted, accountID, map[string]any{
		"status":     string(status),
		"reviewedBy": adminID,
	})
	return account, nil
}

// GetAccount returns the account projection.
func (s *ProVerificationService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.GetAccount")
	defer span.End()

	return s.accounts.GetAccount(ctx, accountID)
}

func (s *ProVerificationService) publish(ctx context.Context, typ domain.EventType, accountID string, data map[string]any) {
	s.events.Publish(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        accountID,
		OccurredAt: s.now(),
		Data:       data,
	})
}
