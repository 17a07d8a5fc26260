package skiprule

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Casers carry state and must not be shared between goroutines,
// so each helper builds its own.

// NormalizeEmail returns the canonical lowercase form of an email
func NormalizeEmail(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// NormalizeCode returns the canonical uppercase form of a designation, project or category code
func NormalizeCode(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

// NormalizeRule rewrites a rule's value sets into canonical case
func NormalizeRule(rule *entity.ApprovalSkipRule) {
	rule.MatchType = strings.ToLower(strings.TrimSpace(rule.MatchType))
	rule.Emails = mapAll(rule.Emails, NormalizeEmail)
	rule.Designations = mapAll(rule.Designations, NormalizeCode)
	rule.ProjectCodes = mapAll(rule.ProjectCodes, NormalizeCode)
	rule.AllowedCategories = mapAll(rule.AllowedCategories, NormalizeCode)
}

// containsFold reports whether value is in set under Unicode case folding
func containsFold(set []string, value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(value))
	for _, v := range set {
		if fold.String(strings.TrimSpace(v)) == want {
			return true
		}
	}
	return false
}

func mapAll(in []string, fn func(string) string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = fn(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
