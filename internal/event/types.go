package event

import (
	"errors"
	"time"
)

// Subscription is one active event registration: a caller (origin,
// delivered through receiver) listening for a plugin signal addressed
// by service, profile, interface and attribute.
//
// Profile, Interface and Attribute are normalised to lowercase when
// the subscription enters the registry; lookups normalise the same
// way, so addressing is case-insensitive end to end.
type Subscription struct {
	ServiceID   string
	Profile     string
	Interface   string
	Attribute   string
	Origin      string
	Receiver    string // callback target key (session id)
	AccessToken string
	CreatedAt   time.Time
}

// Filter selects subscriptions in List. An empty field is a wildcard.
// String fields are lowercased before comparison so callers need not
// pre-normalise.
type Filter struct {
	ServiceID string
	Profile   string
	Interface string
	Attribute string
}

// Sentinel errors for registry operations.
var (
	ErrInvalidParameter = errors.New("event: missing required subscription field")
	ErrNotFound         = errors.New("event: subscription not found")
)
