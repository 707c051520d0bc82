package auth

import "strings"

// ParseScopes splits a comma-separated scope list as it arrives on the
// wire. Elements are trimmed of surrounding whitespace. If any element
// is blank after trimming, the whole list collapses to nil, meaning
// "no scopes specified" rather than a parse error; existing clients
// send trailing commas and expect issuance to proceed.
func ParseScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil
		}
		scopes = append(scopes, p)
	}
	return scopes
}
