package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Defaults applied when no policy constrains a dimension
const (
	DefaultAmountLimit = 10000.0
	MaxClaimAgeDays    = 90
)

// categories that always need at least one supporting document
var documentedCategories = map[string]bool{
	"CERTIFICATION": true,
	"TRAVEL":        true,
}

// Limits is the effective policy for one claim after combining all active rules
type Limits struct {
	AmountLimit       float64
	MinTenureMonths   int
	RequiredDocuments int
	PolicyText        string
}

// Facts are the employee-side inputs of the deterministic checks
type Facts struct {
	TenureMonths  int
	DocumentCount int
	Known         bool
	Source        string
}

// EffectiveLimits combines the active rules for a category. When several rules
// apply, the strictest value wins per dimension.
func EffectiveLimits(category string, rules []entity.PolicyRule) Limits {
	l := Limits{AmountLimit: DefaultAmountLimit}

	var descriptions []string
	limitSet := false
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if r.AmountLimit != nil && (!limitSet || *r.AmountLimit < l.AmountLimit) {
			l.AmountLimit = *r.AmountLimit
			limitSet = true
		}
		if r.MinTenureMonths != nil && *r.MinTenureMonths > l.MinTenureMonths {
			l.MinTenureMonths = *r.MinTenureMonths
		}
		if r.RequiredDocuments != nil && *r.RequiredDocuments > l.RequiredDocuments {
			l.RequiredDocuments = *r.RequiredDocuments
		}
		if d := strings.TrimSpace(r.Description); d != "" {
			descriptions = append(descriptions, d)
		}
	}

	if documentedCategories[strings.ToUpper(strings.TrimSpace(category))] && l.RequiredDocuments < 1 {
		l.RequiredDocuments = 1
	}

	summary := fmt.Sprintf("Amount limit %.2f, minimum tenure %d months, %d document(s) required.",
		l.AmountLimit, l.MinTenureMonths, l.RequiredDocuments)
	if len(descriptions) == 0 {
		l.PolicyText = "No category policy configured; defaults apply. " + summary
	} else {
		l.PolicyText = strings.Join(descriptions, "; ") + ". " + summary
	}
	return l
}

// Evaluate runs the four deterministic checks. It is a pure function of its inputs.
func Evaluate(claim *entity.Claim, limits Limits, facts Facts, now time.Time) []entity.RuleEvidence {
	evidence := make([]entity.RuleEvidence, 0, 4)

	amount := entity.RuleEvidence{RuleID: entity.RuleAmountLimit}
	if claim.Amount <= limits.AmountLimit {
		amount.Passed = true
		amount.Evidence = fmt.Sprintf("amount %.2f is within limit %.2f", claim.Amount, limits.AmountLimit)
	} else {
		amount.Evidence = fmt.Sprintf("amount %.2f exceeds limit %.2f", claim.Amount, limits.AmountLimit)
	}
	evidence = append(evidence, amount)

	tenure := entity.RuleEvidence{RuleID: entity.RuleTenureMinimum}
	switch {
	case !facts.Known && limits.MinTenureMonths > 0:
		tenure.Evidence = fmt.Sprintf("tenure unknown (%s), minimum is %d months", facts.Source, limits.MinTenureMonths)
	case facts.TenureMonths >= limits.MinTenureMonths:
		tenure.Passed = true
		tenure.Evidence = fmt.Sprintf("tenure %d months meets minimum %d", facts.TenureMonths, limits.MinTenureMonths)
	default:
		tenure.Evidence = fmt.Sprintf("tenure %d months is below minimum %d", facts.TenureMonths, limits.MinTenureMonths)
	}
	evidence = append(evidence, tenure)

	evidence = append(evidence, entity.RuleEvidence{
		RuleID:   entity.RuleDocumentRequirement,
		Passed:   facts.DocumentCount >= limits.RequiredDocuments,
		Evidence: fmt.Sprintf("%d document(s) attached, %d required", facts.DocumentCount, limits.RequiredDocuments),
	})

	age := entity.RuleEvidence{RuleID: entity.RuleClaimAge}
	days := claim.AgeDays(now)
	switch {
	case days < 0:
		age.Evidence = fmt.Sprintf("claim date %s is in the future", claim.ClaimDate.Format("2006-01-02"))
	case days <= MaxClaimAgeDays:
		age.Passed = true
		age.Evidence = fmt.Sprintf("claim is %d days old, within %d days", days, MaxClaimAgeDays)
	default:
		age.Evidence = fmt.Sprintf("claim is %d days old, older than %d days", days, MaxClaimAgeDays)
	}
	evidence = append(evidence, age)

	return evidence
}

func allPassed(evidence []entity.RuleEvidence) bool {
	for _, e := range evidence {
		if !e.Passed {
			return false
		}
	}
	return true
}
