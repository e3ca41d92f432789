package chain

import "strings"

// IsRangeLimitError reports whether an RPC error looks like a provider
// rejecting a log query for covering too many blocks or results. Providers
// phrase this differently, so this is a substring check by necessity.
func IsRangeLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"block range",
		"range too large",
		"exceed maximum block range",
		"query returned more than",
		"too many results",
		"limit exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
