package services

import (
	"encoding/json"

	"bycarket/api/internal/models"
)

// QuotaReason explains a negative quota decision.
type QuotaReason string

const (
	QuotaReasonExceeded      QuotaReason = "quota_exceeded"
	QuotaReasonRoleForbidden QuotaReason = "role_forbidden"
)

// QuotaDecision is the outcome of the post-quota check. Denial is a result
// value, not an error: the caller maps it to a user-facing rejection.
type QuotaDecision struct {
	CanCreate bool
	Remaining int  // Meaningful only when Unbounded is false
	Unbounded bool // Admin and premium tiers have no post limit
	Reason    QuotaReason
}

// MarshalJSON renders the decision in the API shape, where an unbounded
// remaining quota is the string "unbounded" rather than a number.
func (d QuotaDecision) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"can_create_post": d.CanCreate,
	}
	if d.Unbounded {
		out["remaining_posts"] = "unbounded"
	} else {
		out["remaining_posts"] = d.Remaining
	}
	if d.Reason != "" {
		out["reason"] = string(d.Reason)
	}
	return json.Marshal(out)
}

// EvaluatePostQuota decides whether a user may create another post, given
// their role and current count of owned (non-deleted) posts.
//
// admin and premium are unconstrained. The free tier is allowed while the
// count is strictly below freeLimit. Unrecognized roles are denied outright.
func EvaluatePostQuota(role models.Role, ownedPosts int64, freeLimit int) QuotaDecision {
	switch role {
	case models.RoleAdmin, models.RolePremium:
		return QuotaDecision{CanCreate: true, Unbounded: true}
	case models.RoleUser:
		remaining := freeLimit - int(ownedPosts)
		if remaining < 0 {
			remaining = 0
		}
		if ownedPosts < int64(freeLimit) {
			return QuotaDecision{CanCreate: true, Remaining: remaining}
		}
		return QuotaDecision{CanCreate: false, Remaining: 0, Reason: QuotaReasonExceeded}
	default:
		return QuotaDecision{CanCreate: false, Remaining: 0, Reason: QuotaReasonRoleForbidden}
	}
}
