// Package phone holds the single address-normalization rule shared by every
// component that compares transport addresses. The identity resolver, the
// chat token issuer, and the orchestrator must all agree on what "the same
// phone" means; keeping the rule here prevents them from drifting apart.
package phone

import "strings"

// channelPrefixes are provider channel markers that may precede the raw
// phone number in webhook payloads.
var channelPrefixes = []string{"whatsapp:", "sms:", "tel:"}

// Normalize strips known channel prefixes until none remain, trims
// surrounding whitespace, and removes interior spaces. It is idempotent:
// Normalize(Normalize(x)) always equals Normalize(x).
func Normalize(addr string) string {
	out := strings.TrimSpace(addr)
	for stripped := true; stripped; {
		stripped = false
		lower := strings.ToLower(out)
		for _, prefix := range channelPrefixes {
			if strings.HasPrefix(lower, prefix) {
				out = strings.TrimSpace(out[len(prefix):])
				stripped = true
				break
			}
		}
	}
	out = strings.ReplaceAll(out, " ", "")
	return out
}
