package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/devicehub-core/internal/broker"
)

// Reserved query parameters consumed by the envelope. Everything else
// passes to the plugin as payload.
var reservedParams = map[string]bool{
	"origin":      true,
	"accessToken": true,
	"nonce":       true,
	"hmac":        true,
	"key":         true,
	"receiver":    true,
	"serviceId":   true,
}

// handleGotapi maps one profile operation onto a broker request. The
// HTTP method selects the action: GET and POST invoke, PUT with a
// receiver subscribes, DELETE with a receiver unsubscribes.
func (s *Server) handleGotapi(w http.ResponseWriter, r *http.Request) {
	req := s.brokerRequest(r)
	req.Profile = chi.URLParam(r, "profile")
	req.Interface = chi.URLParam(r, "interface")
	req.Attribute = chi.URLParam(r, "attribute")

	switch r.Method {
	case http.MethodGet, http.MethodPost:
		req.Action = broker.ActionInvoke
	case http.MethodPut:
		req.Action = broker.ActionInvoke
		if req.Receiver != "" {
			req.Action = broker.ActionSubscribe
		}
	case http.MethodDelete:
		req.Action = broker.ActionInvoke
		if req.Receiver != "" {
			req.Action = broker.ActionUnsubscribe
		}
	default:
		writeGotapiError(w, broker.CodeNotSupportAction, "unsupported method")
		return
	}

	writeBrokerResponse(w, s.broker.HandleRequest(r.Context(), req))
}

// handleServiceDiscovery fans a discovery out through the broker.
func (s *Server) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	req := s.brokerRequest(r)
	req.Action = broker.ActionDiscover
	req.Profile = "serviceDiscovery"

	writeBrokerResponse(w, s.broker.HandleRequest(r.Context(), req))
}

// brokerRequest extracts the request envelope: identity, credentials
// and payload. The profile address fields are filled by the caller.
func (s *Server) brokerRequest(r *http.Request) broker.Request {
	query := r.URL.Query()

	req := broker.Request{
		ServiceID:   query.Get("serviceId"),
		Origin:      requestOrigin(r),
		AccessToken: query.Get("accessToken"),
		Nonce:       query.Get("nonce"),
		Mac:         query.Get("hmac"),
		Receiver:    query.Get("receiver"),
		Payload:     map[string]any{},
	}

	if token := bearerToken(r); token != "" {
		req.AccessToken = token
	}
	if query.Has("key") {
		key := query.Get("key")
		req.Key = &key
	}

	for name, values := range query {
		if reservedParams[name] || len(values) == 0 {
			continue
		}
		req.Payload[name] = values[0]
	}

	// A JSON body augments the query payload; body fields win.
	if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				if !reservedParams[k] {
					req.Payload[k] = v
				}
			}
		}
	}

	return req
}

// requestOrigin resolves the caller's origin from the dedicated
// header, falling back to a query parameter for clients that cannot
// set headers.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("X-GotAPI-Origin"); origin != "" {
		return origin
	}
	return r.URL.Query().Get("origin")
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
