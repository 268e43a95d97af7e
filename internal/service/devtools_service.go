package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// ============================================================
// Dev Tools
// ============================================================

// devReviewer is recorded as the reviewer of decisions forced through the
// development endpoint.
const devReviewer = "devtools"

// DevSetProStatus forces a verification decision without any registry call.
// It is only routed when dev tools are enabled and still honors the
// write-once decision.
func (s *ProVerificationService) DevSetProStatus(ctx context.Context, accountID string, req *domain.DevProStatusRequest) (*domain.DevProStatusResponse, error) {
	ctx, span := verificationTracer.Start(ctx, "ProVerificationService.DevSetProStatus")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Bool("approved", req.Approved))

	now := s.now()
	account, err := s.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		if a.HasDecision() {
			return &domain.ErrPrecondition{Reason: "decision already taken"}
		}
		if a.Company == nil {
			a.Company = &domain.Company{Name: a.Email, VatStatus: domain.VatStatusNone}
		}
		a.VerificationMode = domain.VerificationManual
		a.ApplyDecision(req.Approved, domain.DecisionManual, now, devReviewer)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("DEV: pro status forced",
		zap.String("account_id", accountID),
		zap.String("status", string(account.ProStatus)),
	)
	s.publish(ctx, domain.EventProVerificationDecided, accountID, map[string]any{
		"status":     string(account.ProStatus),
		"source":     string(domain.DecisionManual),
		"reviewedBy": devReviewer,
	})

	msg := "professional account rejected"
	if req.Approved {
		msg = "professional account verified"
	}
	return &domain.DevProStatusResponse{Success: true, Account: account, Message: msg}, nil
}
