// Package event maintains the broker's subscription registry: which
// caller wants which plugin signal, and where to deliver it.
//
// Addressing is case-insensitive by contract. Normalisation happens
// inside Add and List only, so callers never pre-lowercase; a
// subscription stored as "DeviceOrientation" is found by a query for
// "deviceorientation" and vice versa.
//
// The registry also answers the start/stop question for plugin-side
// producers: the broker starts a sensor stream on the first matching
// subscription and stops it when a removal leaves the matching set
// empty.
package event
