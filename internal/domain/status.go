package domain

import "strings"

// Status values as serialized to clients.
const (
	StatusDraft          = "Draft"
	StatusReadyForReview = "Ready_for_Review"
	StatusInReview       = "In_Review"
	StatusApproved       = "Approved"
	StatusDeferred       = "Deferred"
	StatusRejected       = "Rejected"
	StatusSuperseded     = "Superseded"
	StatusRetired        = "Retired"
)

var statuses = []string{
	StatusDraft, StatusReadyForReview, StatusInReview, StatusApproved,
	StatusDeferred, StatusRejected, StatusSuperseded, StatusRetired,
}

func Statuses() []string {
	return append([]string(nil), statuses...)
}

// CanonicalStatus maps any casing of a status onto its serialized form.
func CanonicalStatus(v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, s := range statuses {
		if strings.EqualFold(s, v) {
			return s, true
		}
	}
	return "", false
}
