package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agrinetwork/mediation"
)

var (
	// ErrForbidden signals the caller may not change another account's KYC status.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrInvalidKYCStatus signals an unknown target status.
	ErrInvalidKYCStatus = errors.New("auth: invalid kyc status")
	// ErrInvalidSubmission signals missing identity image references.
	ErrInvalidSubmission = errors.New("auth: id and selfie image references are required")
	// ErrAlreadyVerified signals a resubmission from a verified account.
	ErrAlreadyVerified = errors.New("auth: identity already verified")
)

// KYCService runs identity verification. The AI verifier only advises; anything short
// of a clear approve or reject leaves the account pending for human review.
type KYCService struct {
	repo     Repository
	verifier mediation.Requester
	logger   *zap.Logger
}

func NewKYCService(repo Repository, verifier mediation.Requester, logger *zap.Logger) *KYCService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KYCService{repo: repo, verifier: verifier, logger: logger}
}

// KYCResult is the stored status plus the advisory verdict that produced it.
type KYCResult struct {
	User    User
	Verdict mediation.Verdict
}

// Submit asks the verifier to compare the ID document with the selfie and stores the
// resulting status. Verified accounts cannot resubmit; only SetStatus lowers a verified
// status.
func (s *KYCService) Submit(ctx context.Context, sub KYCSubmission) (KYCResult, error) {
	if strings.TrimSpace(sub.IDImageURL) == "" || strings.TrimSpace(sub.SelfieImageURL) == "" {
		return KYCResult{}, ErrInvalidSubmission
	}

	user, err := s.repo.GetUserByID(ctx, sub.UserID)
	if err != nil {
		return KYCResult{}, err
	}
	if user.KYCVerified() {
		return KYCResult{}, ErrAlreadyVerified
	}

	verdict, err := mediation.Advise(ctx, s.verifier, kycPrompt(user, sub),
		mediation.RecommendApprove, mediation.RecommendReject, mediation.RecommendEscalate)
	if err != nil {
		s.logger.Warn("kyc verdict fell back to manual review",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	status := KYCPending
	switch verdict.Recommendation {
	case mediation.RecommendApprove:
		status = KYCVerified
	case mediation.RecommendReject:
		status = KYCRejected
	}

	updated, err := s.repo.UpdateKYCStatus(ctx, user.ID, status)
	if err != nil {
		return KYCResult{}, err
	}
	return KYCResult{User: updated, Verdict: verdict}, nil
}

// SetStatus is the manual review path for support and admin accounts.
func (s *KYCService) SetStatus(ctx context.Context, actorID, userID string, status KYCStatus) (User, error) {
	switch status {
	case KYCUnverified, KYCPending, KYCVerified, KYCRejected:
	default:
		return User{}, fmt.Errorf("%w: %q", ErrInvalidKYCStatus, status)
	}

	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrForbidden
		}
		return User{}, err
	}
	if !actor.Role.IsStaff() {
		return User{}, ErrForbidden
	}

	return s.repo.UpdateKYCStatus(ctx, userID, status)
}

func kycPrompt(u User, sub KYCSubmission) string {
	var b strings.Builder
	b.WriteString("You verify identities for an agricultural marketplace. ")
	b.WriteString("Compare the identity document with the selfie and decide whether they show the same person ")
	b.WriteString("and whether the document looks genuine.\n")
	fmt.Fprintf(&b, "Account name: %s\n", u.FullName)
	fmt.Fprintf(&b, "Identity document image: %s\n", sub.IDImageURL)
	fmt.Fprintf(&b, "Selfie image: %s\n", sub.SelfieImageURL)
	b.WriteString(`Answer with JSON only: {"recommendation": "approve" | "reject" | "escalate", "rationale": "<one sentence>"}`)
	return b.String()
}
