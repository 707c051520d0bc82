package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestAuthority(t *testing.T, cfg AuthorityConfig) *Authority {
	t.Helper()
	db := testDB(t)
	return NewAuthority(NewClientRepository(db), NewTokenRepository(db), cfg, nil)
}

func TestRegisterClient(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	client, secret, err := a.RegisterClient(context.Background(), "app.example", "Example App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	if client.ID == "" {
		t.Error("client ID should be generated")
	}
	if client.Origin != "app.example" {
		t.Errorf("Origin = %q, want %q", client.Origin, "app.example")
	}
	if secret == "" {
		t.Error("raw secret should be returned")
	}
	if client.SecretHash == secret {
		t.Error("stored hash must not equal the raw secret")
	}

	if err := a.VerifyClientSecret(context.Background(), client.ID, secret); err != nil {
		t.Errorf("VerifyClientSecret() error = %v", err)
	}
	if err := a.VerifyClientSecret(context.Background(), client.ID, "wrong"); err != ErrInvalidSecret {
		t.Errorf("VerifyClientSecret(wrong) error = %v, want ErrInvalidSecret", err)
	}
}

func TestRegisterClient_EmptyOrigin(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	if _, _, err := a.RegisterClient(context.Background(), "", "App"); err != ErrInvalidOrigin {
		t.Errorf("RegisterClient() error = %v, want ErrInvalidOrigin", err)
	}
}

func TestRegisterClient_ReplacesExisting(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	first, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	grant, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID: first.ID,
		Scopes:   []string{"light"},
	})
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}

	second, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() again error = %v", err)
	}
	if second.ID == first.ID {
		t.Error("re-registration should mint a new client id")
	}

	// Tokens issued to the replaced client cascade away.
	if _, err := a.ValidateToken(context.Background(), grant.Token, "light"); err != ErrTokenNotFound {
		t.Errorf("ValidateToken() after re-registration error = %v, want ErrTokenNotFound", err)
	}
}

func TestRequestToken_AutoApprove(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{
		AutoApprove:   true,
		DefaultExpire: time.Hour,
		ProfileExpire: map[string]int64{"canvas": 60},
	})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	grant, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID:        client.ID,
		Scopes:          []string{"light", "canvas"},
		ApplicationName: "App",
	})
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}

	if grant.Token == "" {
		t.Fatal("grant should carry a raw token")
	}
	if len(grant.Scopes) != 2 {
		t.Fatalf("len(Scopes) = %d, want 2", len(grant.Scopes))
	}

	byProfile := map[string]int64{}
	for _, s := range grant.Scopes {
		byProfile[s.Profile] = s.ExpirePeriod
	}
	if byProfile["light"] != 3600 {
		t.Errorf("light expire = %d, want default 3600", byProfile["light"])
	}
	if byProfile["canvas"] != 60 {
		t.Errorf("canvas expire = %d, want override 60", byProfile["canvas"])
	}
}

func TestRequestToken_NoScopes(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	if _, err := a.RequestToken(context.Background(), TokenRequest{ClientID: client.ID}); err != ErrNoScopes {
		t.Errorf("RequestToken() error = %v, want ErrNoScopes", err)
	}
}

func TestRequestToken_UnknownClient(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	_, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID: "cl-missing",
		Scopes:   []string{"light"},
	})
	if err != ErrClientNotFound {
		t.Errorf("RequestToken() error = %v, want ErrClientNotFound", err)
	}
}

func TestRequestToken_InteractiveApprove(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{ApprovalTimeout: 5 * time.Second})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	surfaced := make(chan Approval, 1)
	a.SetApprovalNotifier(func(ap Approval) { surfaced <- ap })

	type result struct {
		grant *TokenGrant
		err   error
	}
	done := make(chan result, 1)
	go func() {
		grant, err := a.RequestToken(context.Background(), TokenRequest{
			ClientID:        client.ID,
			Scopes:          []string{"light"},
			ApplicationName: "App",
		})
		done <- result{grant, err}
	}()

	var ap Approval
	select {
	case ap = <-surfaced:
	case <-time.After(2 * time.Second):
		t.Fatal("approval was never surfaced")
	}

	if ap.Origin != "app.example" {
		t.Errorf("approval Origin = %q, want %q", ap.Origin, "app.example")
	}

	if err := a.Approve(ap.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("RequestToken() error = %v", res.err)
	}
	if res.grant.Token == "" {
		t.Error("approved request should yield a token")
	}

	// The approval is resolved and gone: a second decision is a no-op
	// surfaced as not-found.
	if err := a.Approve(ap.ID); err != ErrApprovalNotFound {
		t.Errorf("second Approve() error = %v, want ErrApprovalNotFound", err)
	}
}

func TestRequestToken_InteractiveDeny(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{ApprovalTimeout: 5 * time.Second})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	surfaced := make(chan Approval, 1)
	a.SetApprovalNotifier(func(ap Approval) { surfaced <- ap })

	done := make(chan error, 1)
	go func() {
		_, err := a.RequestToken(context.Background(), TokenRequest{
			ClientID: client.ID,
			Scopes:   []string{"light"},
		})
		done <- err
	}()

	ap := <-surfaced
	if err := a.Deny(ap.ID); err != nil {
		t.Fatalf("Deny() error = %v", err)
	}

	if err := <-done; err != ErrApprovalDenied {
		t.Errorf("RequestToken() error = %v, want ErrApprovalDenied", err)
	}
}

func TestRequestToken_ApprovalTimeout(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{ApprovalTimeout: 50 * time.Millisecond})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	_, err = a.RequestToken(context.Background(), TokenRequest{
		ClientID: client.ID,
		Scopes:   []string{"light"},
	})
	if err != ErrApprovalTimeout {
		t.Errorf("RequestToken() error = %v, want ErrApprovalTimeout", err)
	}
}

func TestRequestToken_ForPluginSkipsApproval(t *testing.T) {
	// No auto-approve and a timeout short enough to fail the test if
	// the plugin path ever waits for a decision.
	a := newTestAuthority(t, AuthorityConfig{ApprovalTimeout: 50 * time.Millisecond})

	client, _, err := a.RegisterClient(context.Background(), "plugin.host", "Host Plugin")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	grant, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID:  client.ID,
		Scopes:    []string{"system"},
		ForPlugin: true,
	})
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}
	if grant.Token == "" {
		t.Error("plugin request should yield a token without approval")
	}
}

func TestValidateToken_ScopeExpiry(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{
		AutoApprove:   true,
		DefaultExpire: time.Hour,
		ProfileExpire: map[string]int64{"canvas": 60},
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	a.now = func() time.Time { return now }

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	grant, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID: client.ID,
		Scopes:   []string{"light", "canvas"},
	})
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}

	origin, err := a.ValidateToken(context.Background(), grant.Token, "light")
	if err != nil {
		t.Fatalf("ValidateToken(light) error = %v", err)
	}
	if origin != "app.example" {
		t.Errorf("origin = %q, want %q", origin, "app.example")
	}

	// Profile match is case-insensitive.
	if _, err := a.ValidateToken(context.Background(), grant.Token, "LIGHT"); err != nil {
		t.Errorf("ValidateToken(LIGHT) error = %v", err)
	}

	// One second before canvas expiry: still valid.
	now = base.Add(59 * time.Second)
	if _, err := a.ValidateToken(context.Background(), grant.Token, "canvas"); err != nil {
		t.Errorf("ValidateToken(canvas) before expiry error = %v", err)
	}

	// Exactly at expiry: expired.
	now = base.Add(60 * time.Second)
	if _, err := a.ValidateToken(context.Background(), grant.Token, "canvas"); err != ErrTokenExpired {
		t.Errorf("ValidateToken(canvas) at expiry error = %v, want ErrTokenExpired", err)
	}

	// The light scope has its own clock and is still valid.
	if _, err := a.ValidateToken(context.Background(), grant.Token, "light"); err != nil {
		t.Errorf("ValidateToken(light) after canvas expiry error = %v", err)
	}

	now = base.Add(time.Hour)
	if _, err := a.ValidateToken(context.Background(), grant.Token, "light"); err != ErrTokenExpired {
		t.Errorf("ValidateToken(light) at expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestValidateToken_NotGranted(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	grant, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID: client.ID,
		Scopes:   []string{"light"},
	})
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}

	if _, err := a.ValidateToken(context.Background(), grant.Token, "canvas"); err != ErrScopeNotGranted {
		t.Errorf("ValidateToken() error = %v, want ErrScopeNotGranted", err)
	}
}

func TestValidateToken_Unknown(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	if _, err := a.ValidateToken(context.Background(), "never-issued", "light"); err != ErrTokenNotFound {
		t.Errorf("ValidateToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestRevokeClient(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{AutoApprove: true})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	grant, err := a.RequestToken(context.Background(), TokenRequest{
		ClientID: client.ID,
		Scopes:   []string{"light"},
	})
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}

	if err := a.RevokeClient(context.Background(), client.ID); err != nil {
		t.Fatalf("RevokeClient() error = %v", err)
	}

	if _, err := a.ValidateToken(context.Background(), grant.Token, "light"); err != ErrTokenNotFound {
		t.Errorf("ValidateToken() after revoke error = %v, want ErrTokenNotFound", err)
	}
}

func TestPendingApprovals(t *testing.T) {
	a := newTestAuthority(t, AuthorityConfig{ApprovalTimeout: 5 * time.Second})

	client, _, err := a.RegisterClient(context.Background(), "app.example", "App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	surfaced := make(chan Approval, 1)
	a.SetApprovalNotifier(func(ap Approval) { surfaced <- ap })

	done := make(chan error, 1)
	go func() {
		_, err := a.RequestToken(context.Background(), TokenRequest{
			ClientID: client.ID,
			Scopes:   []string{"light"},
		})
		done <- err
	}()

	ap := <-surfaced

	pending := a.PendingApprovals()
	if len(pending) != 1 || pending[0].ID != ap.ID {
		t.Fatalf("PendingApprovals() = %+v, want the surfaced approval", pending)
	}

	if err := a.Deny(ap.ID); err != nil {
		t.Fatalf("Deny() error = %v", err)
	}
	if err := <-done; !errors.Is(err, ErrApprovalDenied) {
		t.Fatalf("RequestToken() error = %v, want ErrApprovalDenied", err)
	}

	if got := a.PendingApprovals(); len(got) != 0 {
		t.Errorf("PendingApprovals() after resolve = %d entries, want 0", len(got))
	}
}
