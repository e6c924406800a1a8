package mediation

import (
	"context"
	"fmt"
	"slices"
)

// Fallback is the verdict used whenever the AI cannot give a usable answer: hand the
// case to a human. It is never an approval.
func Fallback(reason string) Verdict {
	return Verdict{
		Recommendation: RecommendEscalate,
		Rationale:      reason,
	}
}

// Advise asks r for a verdict and restricts the recommendation to allowed. On any
// failure it returns the fallback verdict together with the cause, so callers can
// record the escalation and log why it happened.
func Advise(ctx context.Context, r Requester, prompt string, allowed ...string) (Verdict, error) {
	if r == nil {
		return Fallback("mediation service not configured"), fmt.Errorf("%w: no requester", ErrServiceUnavailable)
	}

	v, err := r.RequestVerdict(ctx, prompt)
	if err != nil {
		return Fallback("mediation service unavailable"), err
	}
	if len(allowed) > 0 && !slices.Contains(allowed, v.Recommendation) {
		return Fallback("unrecognized recommendation"), fmt.Errorf("%w: recommendation %q", ErrUnparseableVerdict, v.Recommendation)
	}
	return v, nil
}

// IsFallback reports whether v is an escalation to human review.
func (v Verdict) IsFallback() bool {
	return v.Recommendation == RecommendEscalate
}
