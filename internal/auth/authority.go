package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthorityConfig holds issuance policy for the token authority.
type AuthorityConfig struct {
	// DefaultExpire is the scope expiry applied when no per-profile
	// override exists.
	DefaultExpire time.Duration

	// ProfileExpire maps a lowercase profile name to its expiry in
	// seconds, overriding DefaultExpire for that profile.
	ProfileExpire map[string]int64

	// ApprovalTimeout bounds how long RequestToken waits for an
	// interactive approve/deny decision.
	ApprovalTimeout time.Duration

	// AutoApprove skips the interactive decision entirely and grants
	// every request. Intended for headless deployments.
	AutoApprove bool
}

// TokenRequest describes one token issuance attempt.
type TokenRequest struct {
	ClientID        string
	Scopes          []string
	ApplicationName string

	// ForPlugin marks a request made by a device plugin rather than a
	// client application. Plugin requests are granted without an
	// interactive decision.
	ForPlugin bool
}

// Approval is a pending interactive decision exposed to the approval
// surface (UI or API).
type Approval struct {
	ID              string    `json:"id"`
	Origin          string    `json:"origin"`
	ApplicationName string    `json:"application_name"`
	Scopes          []string  `json:"scopes"`
	CreatedAt       time.Time `json:"created_at"`
}

// approval pairs the exposed record with its resolution channel. The
// once guard makes resolution idempotent: the first approve, deny or
// timeout wins and every later signal is a no-op.
type approval struct {
	Approval
	done chan bool
	once sync.Once
}

func (a *approval) resolve(granted bool) {
	a.once.Do(func() { a.done <- granted })
}

// Authority issues, stores and validates capability tokens. Client
// registration binds an origin to a client id and secret; token
// issuance is gated by an interactive approval unless auto-approve or
// a plugin request bypasses it. Scopes expire individually, so one
// token can hold profiles with different lifetimes.
//
// Thread Safety: all methods are safe for concurrent use. Each
// pending approval owns its own channel, so resolving one request
// never wakes or blocks another.
type Authority struct {
	clients ClientRepository
	tokens  TokenRepository
	cfg     AuthorityConfig
	log     Logger

	mu      sync.Mutex
	pending map[string]*approval
	notify  func(Approval)

	now func() time.Time
}

// NewAuthority creates a token authority over the given repositories.
func NewAuthority(clients ClientRepository, tokens TokenRepository, cfg AuthorityConfig, log Logger) *Authority {
	if cfg.DefaultExpire <= 0 {
		cfg.DefaultExpire = 180 * 24 * time.Hour
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 60 * time.Second
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Authority{
		clients: clients,
		tokens:  tokens,
		cfg:     cfg,
		log:     log,
		pending: make(map[string]*approval),
		now:     time.Now,
	}
}

// SetApprovalNotifier registers a callback invoked whenever a token
// request starts waiting for an interactive decision. The callback
// must not block; it typically pushes the approval to a UI channel.
func (a *Authority) SetApprovalNotifier(fn func(Approval)) {
	a.mu.Lock()
	a.notify = fn
	a.mu.Unlock()
}

// RegisterClient creates a client record for an origin and returns it
// together with the raw client secret. The secret is returned exactly
// once; only its Argon2id hash is stored. Re-registering an origin
// replaces the previous record, which cascades away any tokens the
// old record held.
func (a *Authority) RegisterClient(ctx context.Context, origin, applicationName string) (*Client, string, error) {
	if !IsValidOrigin(origin) {
		return nil, "", ErrInvalidOrigin
	}

	if existing, err := a.clients.GetByOrigin(ctx, origin); err == nil {
		if err := a.clients.Delete(ctx, existing.ID); err != nil {
			return nil, "", fmt.Errorf("replacing client for %q: %w", origin, err)
		}
	} else if err != ErrClientNotFound {
		return nil, "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, "", err
	}

	client := &Client{
		Origin:          origin,
		SecretHash:      hash,
		ApplicationName: applicationName,
	}
	if err := a.clients.Create(ctx, client); err != nil {
		return nil, "", err
	}

	a.log.Info("client registered", "origin", origin, "client_id", client.ID)
	return client, secret, nil
}

// VerifyClientSecret checks a raw secret against the stored hash for
// the client.
func (a *Authority) VerifyClientSecret(ctx context.Context, clientID, secret string) error {
	client, err := a.clients.GetByID(ctx, clientID)
	if err != nil {
		return err
	}
	ok, err := VerifySecret(secret, client.SecretHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSecret
	}
	return nil
}

// RequestToken issues a scoped token to a registered client. When an
// interactive decision is required the call suspends until Approve or
// Deny is invoked for the surfaced Approval, or the configured
// approval timeout elapses. Denial and timeout both fail issuance; a
// second decision for an already resolved approval is a no-op.
func (a *Authority) RequestToken(ctx context.Context, req TokenRequest) (*TokenGrant, error) {
	client, err := a.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if len(req.Scopes) == 0 {
		return nil, ErrNoScopes
	}

	if !a.cfg.AutoApprove && !req.ForPlugin {
		if err := a.awaitApproval(ctx, client.Origin, req); err != nil {
			return nil, err
		}
	}

	raw, err := generateSecret()
	if err != nil {
		return nil, err
	}

	issuedAt := a.now().UTC()
	scopes := make([]Scope, len(req.Scopes))
	for i, s := range req.Scopes {
		scopes[i] = Scope{Profile: s, ExpirePeriod: a.expireFor(s)}
	}

	token := &AccessToken{
		ClientID:  client.ID,
		TokenHash: HashToken(raw),
		Scopes:    scopes,
		CreatedAt: issuedAt,
	}
	if err := a.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	a.log.Info("token issued",
		"origin", client.Origin,
		"client_id", client.ID,
		"scopes", req.Scopes,
	)

	return &TokenGrant{
		Token:    raw,
		Scopes:   scopes,
		IssuedAt: issuedAt,
		ClientID: client.ID,
		Origin:   client.Origin,
	}, nil
}

// awaitApproval parks the issuing call until a decision arrives or the
// timeout fires.
func (a *Authority) awaitApproval(ctx context.Context, origin string, req TokenRequest) error {
	ap := &approval{
		Approval: Approval{
			ID:              uuid.NewString(),
			Origin:          origin,
			ApplicationName: req.ApplicationName,
			Scopes:          req.Scopes,
			CreatedAt:       a.now().UTC(),
		},
		done: make(chan bool, 1),
	}

	a.mu.Lock()
	a.pending[ap.ID] = ap
	notify := a.notify
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pending, ap.ID)
		a.mu.Unlock()
	}()

	a.log.Info("approval requested",
		"origin", origin,
		"application", req.ApplicationName,
		"scopes", req.Scopes,
	)
	if notify != nil {
		notify(ap.Approval)
	}

	timer := time.NewTimer(a.cfg.ApprovalTimeout)
	defer timer.Stop()

	select {
	case granted := <-ap.done:
		if !granted {
			return ErrApprovalDenied
		}
		return nil
	case <-timer.C:
		ap.resolve(false)
		return ErrApprovalTimeout
	case <-ctx.Done():
		ap.resolve(false)
		return ctx.Err()
	}
}

// PendingApprovals returns the approvals currently awaiting a
// decision, oldest first.
func (a *Authority) PendingApprovals() []Approval {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Approval, 0, len(a.pending))
	for _, ap := range a.pending {
		out = append(out, ap.Approval)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Approve grants a pending approval. Unknown or already resolved ids
// return ErrApprovalNotFound.
func (a *Authority) Approve(id string) error {
	return a.decide(id, true)
}

// Deny rejects a pending approval.
func (a *Authority) Deny(id string) error {
	return a.decide(id, false)
}

func (a *Authority) decide(id string, granted bool) error {
	a.mu.Lock()
	ap, ok := a.pending[id]
	a.mu.Unlock()
	if !ok {
		return ErrApprovalNotFound
	}
	ap.resolve(granted)
	return nil
}

// ValidateToken checks a raw token against the named profile's scope.
// Returns the owning client's origin on success. The profile match is
// case-insensitive.
func (a *Authority) ValidateToken(ctx context.Context, raw, profile string) (string, error) {
	token, err := a.tokens.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		return "", err
	}

	var scope *Scope
	for i := range token.Scopes {
		if strings.EqualFold(token.Scopes[i].Profile, profile) {
			scope = &token.Scopes[i]
			break
		}
	}
	if scope == nil {
		return "", ErrScopeNotGranted
	}

	expiresAt := token.CreatedAt.Add(time.Duration(scope.ExpirePeriod) * time.Second)
	if !a.now().Before(expiresAt) {
		return "", ErrTokenExpired
	}

	client, err := a.clients.GetByID(ctx, token.ClientID)
	if err != nil {
		return "", err
	}
	return client.Origin, nil
}

// RevokeClient deletes a client record; its tokens cascade away with
// it.
func (a *Authority) RevokeClient(ctx context.Context, clientID string) error {
	if err := a.clients.Delete(ctx, clientID); err != nil {
		return err
	}
	a.log.Info("client revoked", "client_id", clientID)
	return nil
}

// RevokeOrigin deletes the client registered for an origin, tokens
// included. ErrClientNotFound when the origin has no registration.
func (a *Authority) RevokeOrigin(ctx context.Context, origin string) error {
	client, err := a.clients.GetByOrigin(ctx, origin)
	if err != nil {
		return err
	}
	return a.RevokeClient(ctx, client.ID)
}

// expireFor resolves the expiry period in seconds for a profile.
func (a *Authority) expireFor(profile string) int64 {
	if p, ok := a.cfg.ProfileExpire[strings.ToLower(profile)]; ok {
		return p
	}
	return int64(a.cfg.DefaultExpire / time.Second)
}

// generateSecret returns 32 bytes of cryptographic randomness as hex.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
