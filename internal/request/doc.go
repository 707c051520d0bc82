// Package request implements the broker's fan-out/fan-in engine.
//
// A dispatch addresses 0..N plugins, tags each outbound message with a
// fresh correlation id and suspends the calling flow until every
// tagged reply has arrived or the deadline fires. Each dispatch owns
// its own reply channel, so many dispatches wait concurrently without
// sharing a lock beyond the id table. A timed-out dispatch returns its
// partial result and kicks a restart of every silent plugin as a side
// effect; the request itself is never retried.
package request
