// Package auth provides the two security primitives that gate every
// broker request in DeviceHub Core.
//
// The HmacManager proves that a request came from a client that
// previously registered a shared secret for its origin: it computes
// HMAC-SHA256 over a caller-supplied nonce and the caller compares the
// digest against the value the client sent. The Authority implements
// the local OAuth flow: client registration binds an origin to a
// client id and Argon2id-hashed secret, and token issuance grants
// per-profile scopes, each with its own expiry, gated by an
// interactive approve/deny decision with a bounded timeout.
//
// Both primitives keep their hot-path state in memory and persist
// through SQLite repositories so keys, clients and tokens survive a
// restart. Raw secrets and tokens are never stored; only Argon2id and
// SHA-256 hashes are.
//
// Session tickets (short-lived JWTs) let a client carry its
// authenticated origin from the HTTP surface to the WebSocket upgrade
// without a second credential exchange.
package auth
