package broker

// Action classifies an inbound request.
type Action string

const (
	// ActionInvoke is a profile operation routed to one plugin.
	ActionInvoke Action = "INVOKE"

	// ActionSubscribe registers an event subscription.
	ActionSubscribe Action = "SUBSCRIBE"

	// ActionUnsubscribe removes an event subscription.
	ActionUnsubscribe Action = "UNSUBSCRIBE"

	// ActionDiscover fans out to every online plugin and aggregates
	// their service lists.
	ActionDiscover Action = "DISCOVER"
)

// Request is the inbound record handed over by the API layer. The
// layer has already parsed the wire format; the broker only sees
// typed fields.
type Request struct {
	Action      Action
	ServiceID   string
	Profile     string
	Interface   string
	Attribute   string
	Origin      string
	AccessToken string

	// Nonce and Mac carry the keyed-MAC credential. The client sends
	// a nonce and the MAC it computed over it with the shared secret.
	Nonce string
	Mac   string

	// Key, when non-nil, upserts the caller's HMAC secret before the
	// request proper is handled. A pointer to the empty string clears
	// the stored key.
	Key *string

	// Receiver identifies the caller's event delivery channel,
	// typically a WebSocket session id. Required for subscriptions.
	Receiver string

	// Payload carries profile-specific parameters verbatim.
	Payload map[string]any
}

// Status is the outcome class of a response.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Error codes surfaced to clients. The values are wire-stable;
// plugins report the same vocabulary and their codes pass through
// untranslated.
const (
	CodeUnknown                 = 1
	CodeNotSupportProfile       = 2
	CodeNotSupportAction        = 3
	CodeNotSupportAttribute     = 4
	CodeEmptyServiceID          = 5
	CodeNotFoundService         = 6
	CodeTimeout                 = 7
	CodeUnknownAttribute        = 8
	CodeIllegalDeviceState      = 9
	CodeInvalidRequestParameter = 10
	CodeAuthorization           = 11
	CodeExpiredAccessToken      = 12
	CodeEmptyAccessToken        = 13
	CodeScope                   = 14
	CodeNotFoundClientID        = 15
	CodeIllegalServerState      = 16
	CodeInvalidOrigin           = 17
)

// Response is the terminal answer for one request. Every request gets
// exactly one, success or failure; partial fan-out results come back
// as StatusOK with whatever arrived.
type Response struct {
	Status       Status
	ErrorCode    int
	ErrorMessage string
	Payload      map[string]any
}

// okResponse builds a success response. A nil payload is normalized
// to an empty map so callers can always range over it.
func okResponse(payload map[string]any) Response {
	if payload == nil {
		payload = map[string]any{}
	}
	return Response{Status: StatusOK, Payload: payload}
}

// errorResponse builds a failure response.
func errorResponse(code int, message string) Response {
	return Response{
		Status:       StatusError,
		ErrorCode:    code,
		ErrorMessage: message,
		Payload:      map[string]any{},
	}
}
