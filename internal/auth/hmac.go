package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// KeyRepository defines the interface for HMAC key persistence.
type KeyRepository interface {
	Upsert(ctx context.Context, key *HmacKey) error
	Get(ctx context.Context, origin string) (*HmacKey, error)
	Delete(ctx context.Context, origin string) error
	List(ctx context.Context) ([]HmacKey, error)
}

// HmacManager verifies that a request came from a client that
// previously registered a shared secret for its origin. Keys are kept
// in an in-memory map for lookup on the hot path and written through
// to the repository so they survive restarts.
//
// Thread Safety: all methods are safe for concurrent use. Mutations
// and reads share one RWMutex over the key map; repository writes
// happen inside the critical section so the map and the store cannot
// diverge under concurrent upserts for the same origin.
type HmacManager struct {
	mu   sync.RWMutex
	keys map[string]string // origin -> hex secret
	repo KeyRepository
	log  Logger
}

// NewHmacManager creates an HmacManager backed by the given repository
// and pre-loads all persisted keys. A nil repository yields a purely
// in-memory manager, used in tests.
func NewHmacManager(ctx context.Context, repo KeyRepository, log Logger) (*HmacManager, error) {
	if log == nil {
		log = noopLogger{}
	}
	m := &HmacManager{
		keys: make(map[string]string),
		repo: repo,
		log:  log,
	}
	if repo != nil {
		stored, err := repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading hmac keys: %w", err)
		}
		for _, k := range stored {
			m.keys[k.Origin] = k.Secret
		}
	}
	return m, nil
}

// UpdateKey upserts the key for an origin. An empty secret is an
// explicit clear: the key is deleted and UsesMac becomes false for
// that origin.
func (m *HmacManager) UpdateKey(ctx context.Context, origin, secret string) error {
	if !IsValidOrigin(origin) {
		return ErrInvalidOrigin
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if secret == "" {
		delete(m.keys, origin)
		if m.repo != nil {
			if err := m.repo.Delete(ctx, origin); err != nil {
				return fmt.Errorf("deleting hmac key: %w", err)
			}
		}
		m.log.Debug("hmac key cleared", "origin", origin)
		return nil
	}

	m.keys[origin] = secret
	if m.repo != nil {
		if err := m.repo.Upsert(ctx, &HmacKey{Origin: origin, Secret: secret}); err != nil {
			return fmt.Errorf("storing hmac key: %w", err)
		}
	}
	m.log.Debug("hmac key updated", "origin", origin)
	return nil
}

// UsesMac reports whether a key is currently registered for origin.
func (m *HmacManager) UsesMac(origin string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[origin]
	return ok
}

// ComputeMac computes HMAC-SHA256 over the nonce using the origin's
// registered key and returns it as lowercase hex. Returns
// ErrKeyNotFound when no key exists for the origin; the caller must
// reject the request in that case, never fall through to allow.
//
// Secret and nonce arrive as hex strings and are decoded to raw bytes
// first. Odd-length hex is padded with a leading zero rather than
// rejected, so "abc" decodes as 0x0a 0xbc; existing clients depend on
// this.
func (m *HmacManager) ComputeMac(origin, nonce string) (string, error) {
	m.mu.RLock()
	secret, ok := m.keys[origin]
	m.mu.RUnlock()
	if !ok {
		return "", ErrKeyNotFound
	}

	key, err := decodeHexLoose(secret)
	if err != nil {
		return "", fmt.Errorf("decoding hmac key for %q: %w", origin, err)
	}
	msg, err := decodeHexLoose(nonce)
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyMac recomputes the MAC for (origin, nonce) and compares it
// against the caller-supplied value in constant time.
func (m *HmacManager) VerifyMac(origin, nonce, supplied string) (bool, error) {
	want, err := m.ComputeMac(origin, nonce)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(supplied)), nil
}

// decodeHexLoose decodes a hex string, padding odd-length input with a
// leading zero.
func decodeHexLoose(s string) ([]byte, error) {
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
