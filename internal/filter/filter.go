// Package filter gates delivery attempts before any network call is made.
package filter

import "strings"

// Reasons recorded on skipped audit records.
const (
	ReasonTestEmail     = "test email pattern"
	ReasonDisabled      = "service disabled"
	ReasonNotConfigured = "not configured"
)

// testEmailPatterns are matched case-insensitively as substrings.
var testEmailPatterns = []string{
	"test@",
	"demo@",
	"example@",
	"+test",
	"@test.",
}

// Decision is the outcome of an eligibility check. Reason is set only when
// Eligible is false.
type Decision struct {
	Eligible bool
	Reason   string
}

// ConfiguredChecker reports whether the delivery client has credentials.
type ConfiguredChecker interface {
	IsConfigured() bool
}

// Filter decides whether a submission should be delivered at all.
type Filter struct {
	enabled bool
	client  ConfiguredChecker
}

func New(enabled bool, client ConfiguredChecker) *Filter {
	return &Filter{
		enabled: enabled,
		client:  client,
	}
}

// Check evaluates the eligibility rules in order: test-data suppression
// first, then the enabled switch, then credential presence. The two
// configuration reasons stay distinct for diagnostics.
func (f *Filter) Check(email string) Decision {
	if IsTestEmail(email) {
		return Decision{Reason: ReasonTestEmail}
	}
	if !f.enabled {
		return Decision{Reason: ReasonDisabled}
	}
	if f.client == nil || !f.client.IsConfigured() {
		return Decision{Reason: ReasonNotConfigured}
	}
	return Decision{Eligible: true}
}

// IsTestEmail reports whether the address matches a known test/demo pattern.
func IsTestEmail(email string) bool {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return false
	}

	for _, pattern := range testEmailPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}
