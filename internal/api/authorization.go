package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/devicehub-core/internal/auth"
	"github.com/nerrad567/devicehub-core/internal/broker"
)

// handleGrant registers a client application for its origin and hands
// back the client id and the secret, shown exactly once.
// Re-registering an origin replaces the previous client; its tokens
// die with it.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	applicationName := r.URL.Query().Get("applicationName")

	client, secret, err := s.authority.RegisterClient(r.Context(), origin, applicationName)
	if errors.Is(err, auth.ErrInvalidOrigin) {
		writeGotapiError(w, broker.CodeInvalidOrigin, "origin is required")
		return
	}
	if err != nil {
		s.logger.Error("client registration failed", "origin", origin, "error", err)
		writeGotapiError(w, broker.CodeUnknown, "registration failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":       resultOK,
		"clientId":     client.ID,
		"clientSecret": secret,
	})
}

// handleRevokeGrant removes an origin's client registration. Tokens
// cascade away with the client; the broker drops the origin's HMAC
// key and subscriptions.
func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	if origin == "" {
		writeGotapiError(w, broker.CodeInvalidOrigin, "origin is required")
		return
	}

	err := s.authority.RevokeOrigin(r.Context(), origin)
	if errors.Is(err, auth.ErrClientNotFound) {
		writeGotapiError(w, broker.CodeNotFoundClientID, "no client for that origin")
		return
	}
	if err != nil {
		s.logger.Error("client revocation failed", "origin", origin, "error", err)
		writeGotapiError(w, broker.CodeUnknown, "revocation failed")
		return
	}

	s.broker.HandleOriginRevoked(r.Context(), origin)
	writeJSON(w, http.StatusOK, map[string]any{"result": resultOK})
}

// handleAccessToken issues a scoped token. The call suspends while an
// interactive approval is pending, bounded by the configured timeout.
// On any failure the accessToken field is present and empty; callers
// read it unconditionally.
func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	grant, err := s.authority.RequestToken(r.Context(), auth.TokenRequest{
		ClientID:        query.Get("clientId"),
		Scopes:          auth.ParseScopes(query.Get("scope")),
		ApplicationName: query.Get("applicationName"),
		ForPlugin:       query.Get("forPlugin") == "true",
	})
	if err != nil {
		code, message := tokenErrorCode(err)
		writeJSON(w, http.StatusOK, map[string]any{
			"result":       resultError,
			"accessToken":  "",
			"errorCode":    code,
			"errorMessage": message,
		})
		return
	}

	scopes := make([]map[string]any, len(grant.Scopes))
	for i, sc := range grant.Scopes {
		scopes[i] = map[string]any{
			"scope":        sc.Profile,
			"expirePeriod": sc.ExpirePeriod,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":      resultOK,
		"accessToken": grant.Token,
		"scopes":      scopes,
	})
}

// tokenErrorCode maps an issuance failure to its wire code and a
// human-readable reason.
func tokenErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrClientNotFound):
		return broker.CodeNotFoundClientID, "unknown client id"
	case errors.Is(err, auth.ErrNoScopes):
		return broker.CodeInvalidRequestParameter, "no scopes specified"
	case errors.Is(err, auth.ErrApprovalDenied):
		return broker.CodeAuthorization, "token request was denied"
	case errors.Is(err, auth.ErrApprovalTimeout):
		return broker.CodeAuthorization, "token request was not approved in time"
	default:
		return broker.CodeUnknown, "token issuance failed"
	}
}

// handleSessionTicket issues a short-lived signed ticket for the
// WebSocket upgrade. The receiver id in the response is what
// subscribe requests must carry so events reach this session.
func (s *Server) handleSessionTicket(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	if origin == "" {
		writeGotapiError(w, broker.CodeInvalidOrigin, "origin is required")
		return
	}

	ticket, err := auth.GenerateSessionTicket(origin, s.secCfg.JWT.Secret, s.secCfg.JWT.TicketTTL)
	if err != nil {
		s.logger.Error("session ticket generation failed", "error", err)
		writeGotapiError(w, broker.CodeUnknown, "ticket generation failed")
		return
	}

	// The session id lives inside the signed ticket; surface it so the
	// client can use it as its receiver without decoding the JWT.
	claims, err := auth.ParseSessionTicket(ticket, s.secCfg.JWT.Secret)
	if err != nil {
		writeGotapiError(w, broker.CodeUnknown, "ticket generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":   resultOK,
		"ticket":   ticket,
		"receiver": claims.SessionID,
	})
}

// handleListApprovals lists token requests waiting for an interactive
// decision.
func (s *Server) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"result":    resultOK,
		"approvals": s.authority.PendingApprovals(),
	})
}

// handleApprove grants a pending token request.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, s.authority.Approve)
}

// handleDeny rejects a pending token request.
func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, s.authority.Deny)
}

func (s *Server) decideApproval(w http.ResponseWriter, r *http.Request, decide func(string) error) {
	id := chi.URLParam(r, "id")
	if err := decide(id); err != nil {
		writeNotFound(w, "no pending approval with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": resultOK})
}
