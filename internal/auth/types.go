package auth

import (
	"errors"
	"time"
)

// maxOriginLength is the maximum allowed origin length.
const maxOriginLength = 256

// IsValidOrigin checks that an origin is usable as a map/storage key.
// Origins are opaque application identity strings (package name, bundle
// id or declared header); the only hard requirements are non-empty and
// bounded length.
func IsValidOrigin(origin string) bool {
	return origin != "" && len(origin) <= maxOriginLength
}

// HmacKey is a per-origin shared secret used to verify request MACs.
// Secret and nonce values travel as hex strings and are decoded to raw
// bytes before the MAC primitive is applied.
type HmacKey struct {
	Origin    string    `json:"origin"`
	Secret    string    `json:"-"` // never serialised
	UpdatedAt time.Time `json:"updated_at"`
}

// Client represents a registered application identity. One client
// record exists per origin; the record is immutable after creation and
// ClientID is the stable handle used for token issuance.
type Client struct {
	ID              string    `json:"client_id"`
	Origin          string    `json:"origin"`
	SecretHash      string    `json:"-"` // never serialised
	ApplicationName string    `json:"application_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Scope grants access to one profile with its own expiry. A token
// carries one Scope per requested profile, so a client can hold
// short-lived access to one capability and long-lived access to
// another under the same token.
type Scope struct {
	Profile      string `json:"scope"`
	ExpirePeriod int64  `json:"expirePeriod"` // seconds from token issue
}

// AccessToken is an issued capability token. The raw token string is
// returned to the caller exactly once; only its SHA-256 hash is stored.
type AccessToken struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	TokenHash string    `json:"-"` // never serialised
	Scopes    []Scope   `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// ScopeExpiresAt returns the absolute expiry instant for one scope of
// the token, or the zero time if the token does not carry that scope.
// Profile comparison is exact; callers normalise case at the transport
// boundary.
func (t *AccessToken) ScopeExpiresAt(profile string) time.Time {
	for _, s := range t.Scopes {
		if s.Profile == profile {
			return t.CreatedAt.Add(time.Duration(s.ExpirePeriod) * time.Second)
		}
	}
	return time.Time{}
}

// TokenGrant is the result of a successful token issuance: the raw
// token plus the scope set actually granted.
type TokenGrant struct {
	Token    string    `json:"accessToken"`
	Scopes   []Scope   `json:"scopes"`
	IssuedAt time.Time `json:"-"`
	ClientID string    `json:"-"`
	Origin   string    `json:"-"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidOrigin    = errors.New("auth: invalid origin")
	ErrKeyNotFound      = errors.New("auth: no hmac key for origin")
	ErrClientNotFound   = errors.New("auth: client not found")
	ErrTokenNotFound    = errors.New("auth: token not found")
	ErrScopeNotGranted  = errors.New("auth: scope not granted by token")
	ErrTokenExpired     = errors.New("auth: token scope has expired")
	ErrNoScopes         = errors.New("auth: no scopes requested")
	ErrApprovalDenied   = errors.New("auth: token request denied")
	ErrApprovalNotFound = errors.New("auth: approval not found")
	ErrApprovalTimeout  = errors.New("auth: approval decision timed out")
	ErrInvalidSecret    = errors.New("auth: invalid client secret")
)
