package domain

import "strings"

// Normalized delivery error codes. HTTP failures additionally use the
// stringified status ("429", "500", ...) as the code.
const (
	ErrorCodeConfiguration = "configuration_error"
	ErrorCodeConnection    = "connection_error"
	ErrorCodeTimeout       = "timeout"
	ErrorCodeRateLimit     = "rate_limit"
	ErrorCodeNetwork       = "network_error"
	ErrorCodeServer        = "server_error"
	ErrorCodeUnexpected    = "unexpected_error"
	ErrorCodeQueue         = "queue_error"
)

// retryableCodes is the fixed set of codes eligible for automatic retry.
// Attempt-count exhaustion is the scheduler's concern, not part of this
// classification.
var retryableCodes = map[string]struct{}{
	ErrorCodeTimeout:    {},
	ErrorCodeNetwork:    {},
	ErrorCodeRateLimit:  {},
	ErrorCodeServer:     {},
	ErrorCodeConnection: {},
	"429":               {},
	"500":               {},
	"502":               {},
	"503":               {},
	"504":               {},
}

// IsRetryableCode reports whether a failure with the given code should be
// re-attempted. The check is pure and independent of attempt count.
func IsRetryableCode(code string) bool {
	_, ok := retryableCodes[strings.ToLower(strings.TrimSpace(code))]
	return ok
}
