package event

import (
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory index of active event subscriptions. The
// broker consults it twice per plugin event: once to find the callers
// an event must be delivered to, and once after a removal to decide
// whether the owning plugin should stop producing the signal at all
// (last subscriber out).
//
// Subscriptions live only as long as the process; a client that
// reconnects re-subscribes.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	subs   []Subscription
	logger Logger
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add stores a subscription. ServiceID, Profile, Attribute, Origin and
// Receiver are required; Interface may be empty. Profile, Interface
// and Attribute are lowercased before storing. Re-adding an identical
// subscription refreshes its access token instead of duplicating it.
//
// The returned bool reports whether the registry held no subscription
// for the same signal before this call, decided under the registry
// lock so concurrent adds agree on exactly one first subscriber.
func (r *Registry) Add(sub Subscription) (bool, error) {
	if sub.ServiceID == "" || sub.Profile == "" || sub.Attribute == "" ||
		sub.Origin == "" || sub.Receiver == "" {
		return false, ErrInvalidParameter
	}

	sub.Profile = strings.ToLower(sub.Profile)
	sub.Interface = strings.ToLower(sub.Interface)
	sub.Attribute = strings.ToLower(sub.Attribute)
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	first := true
	for i := range r.subs {
		if !r.subs[i].sameSignal(sub) {
			continue
		}
		first = false
		if r.subs[i].sameIdentity(sub) {
			r.subs[i].AccessToken = sub.AccessToken
			return false, nil
		}
	}

	r.subs = append(r.subs, sub)
	r.logger.Debug("subscription added",
		"service", sub.ServiceID,
		"profile", sub.Profile,
		"attribute", sub.Attribute,
		"origin", sub.Origin,
	)
	return first, nil
}

// Remove deletes the subscription matching sub's identity fields
// (service, profile, interface, attribute, origin, receiver). Returns
// ErrNotFound if no entry matches.
func (r *Registry) Remove(sub Subscription) error {
	sub.Profile = strings.ToLower(sub.Profile)
	sub.Interface = strings.ToLower(sub.Interface)
	sub.Attribute = strings.ToLower(sub.Attribute)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.subs {
		if r.subs[i].sameIdentity(sub) {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			r.logger.Debug("subscription removed",
				"service", sub.ServiceID,
				"profile", sub.Profile,
				"attribute", sub.Attribute,
				"origin", sub.Origin,
			)
			return nil
		}
	}
	return ErrNotFound
}

// RemoveAllForOrigin deletes every subscription owned by origin.
// Returns true if any entry was removed. Used when a client
// disconnects or is revoked.
func (r *Registry) RemoveAllForOrigin(origin string) bool {
	return r.removeAll(func(s *Subscription) bool { return s.Origin == origin })
}

// RemoveAllForReceiver deletes every subscription delivered through
// the given receiver key. Used when a transport session closes.
func (r *Registry) RemoveAllForReceiver(receiver string) bool {
	return r.removeAll(func(s *Subscription) bool { return s.Receiver == receiver })
}

func (r *Registry) removeAll(match func(*Subscription) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.subs[:0]
	removed := 0
	for i := range r.subs {
		if match(&r.subs[i]) {
			removed++
			continue
		}
		kept = append(kept, r.subs[i])
	}
	r.subs = kept

	if removed > 0 {
		r.logger.Debug("subscriptions removed in bulk", "count", removed)
	}
	return removed > 0
}

// List returns the subscriptions matching the filter. Empty filter
// fields are wildcards; string comparison is case-insensitive.
func (r *Registry) List(f Filter) []Subscription {
	f.Profile = strings.ToLower(f.Profile)
	f.Interface = strings.ToLower(f.Interface)
	f.Attribute = strings.ToLower(f.Attribute)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Subscription
	for i := range r.subs {
		s := &r.subs[i]
		if f.ServiceID != "" && s.ServiceID != f.ServiceID {
			continue
		}
		if f.Profile != "" && s.Profile != f.Profile {
			continue
		}
		if f.Interface != "" && s.Interface != f.Interface {
			continue
		}
		if f.Attribute != "" && s.Attribute != f.Attribute {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// ListByReceiver returns every subscription delivered through the
// given receiver key, used to tear down one transport session.
func (r *Registry) ListByReceiver(receiver string) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Subscription
	for i := range r.subs {
		if r.subs[i].Receiver == receiver {
			out = append(out, r.subs[i])
		}
	}
	return out
}

// Count returns the number of active subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// sameSignal reports whether two subscriptions address the same
// service signal, regardless of who holds them. Both sides are
// assumed normalised.
func (s *Subscription) sameSignal(o Subscription) bool {
	return s.ServiceID == o.ServiceID &&
		s.Profile == o.Profile &&
		s.Interface == o.Interface &&
		s.Attribute == o.Attribute
}

// sameIdentity reports whether two subscriptions address the same
// signal for the same caller. AccessToken and CreatedAt are not part
// of the identity. Both sides are assumed normalised.
func (s *Subscription) sameIdentity(o Subscription) bool {
	return s.ServiceID == o.ServiceID &&
		s.Profile == o.Profile &&
		s.Interface == o.Interface &&
		s.Attribute == o.Attribute &&
		s.Origin == o.Origin &&
		s.Receiver == o.Receiver
}
