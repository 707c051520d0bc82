// Package broker ties the request path together. One Broker instance
// receives typed requests from the API layer, authenticates them with
// the keyed-MAC validator or the token authority, resolves which
// plugins must answer, drives the fan-out dispatcher, and shapes a
// single terminal response.
//
// It also owns the subscription side: subscribe and unsubscribe
// requests maintain the event registry, inbound plugin events are
// routed only to current subscribers, and the plugin-side producer
// for a signal runs exactly while the signal has at least one
// subscriber.
package broker
