// Package api implements the HTTP and WebSocket front end of DeviceHub.
//
// This package provides:
//   - The /gotapi request surface: profile operations are mapped onto
//     broker requests (GET/POST invoke, PUT subscribes, DELETE
//     unsubscribes when a receiver is supplied)
//   - The authorization flow: client grant, scoped access tokens,
//     interactive approval endpoints
//   - A WebSocket hub that delivers plugin events to subscribed
//     sessions, authorised by short-lived signed tickets
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The server is a thin translation layer: it parses the wire request
// into a typed broker request, lets the broker authenticate and route
// it, and serialises the broker's response. All policy lives in the
// broker and auth packages; nothing here inspects profiles beyond
// routing.
//
// # Security
//
// Callers identify themselves with an origin header. Requests carry
// either a scoped access token or a keyed-MAC credential; the broker
// decides which profiles are reachable without one. WebSocket upgrades
// use short-lived signed tickets so access tokens never appear in
// URLs.
package api
