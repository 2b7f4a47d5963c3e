package domain

import "strings"

// Intent is a coarse classification of query purpose, used to tune
// retrieval parameters.
type Intent string

const (
	IntentDiscovery   Intent = "DISCOVERY"
	IntentEligibility Intent = "ELIGIBILITY"
	IntentBenefits    Intent = "BENEFITS"
	IntentComparison  Intent = "COMPARISON"
	IntentProcedure   Intent = "PROCEDURE"
	IntentGeneral     Intent = "GENERAL"
)

// IntentLabels lists every recognized intent, in classifier-prompt order.
var IntentLabels = []Intent{
	IntentDiscovery,
	IntentEligibility,
	IntentBenefits,
	IntentComparison,
	IntentProcedure,
	IntentGeneral,
}

// ParseIntent maps a classifier label to a known intent. Labels outside the
// known set are rejected with ErrInvalidIntent; callers recover by falling
// back to IntentGeneral.
func ParseIntent(label string) (Intent, error) {
	candidate := Intent(strings.ToUpper(strings.TrimSpace(label)))
	for _, known := range IntentLabels {
		if candidate == known {
			return known, nil
		}
	}
	return IntentGeneral, WrapError(ErrInvalidIntent, "parse intent", errUnknownLabel(label))
}

type errUnknownLabel string

func (e errUnknownLabel) Error() string { return "unknown intent label: " + string(e) }
