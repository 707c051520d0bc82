package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/devicehub-core/internal/auth"
	"github.com/nerrad567/devicehub-core/internal/event"
	"github.com/nerrad567/devicehub-core/internal/plugin"
	"github.com/nerrad567/devicehub-core/internal/request"
)

// Plugin-facing vocabulary for discovery. Clients ask the manager for
// its service list; plugins answer a network-scoped variant.
const (
	discoveryProfile   = "networkServiceDiscovery"
	discoveryAttribute = "getNetworkServices"
)

// MacValidator is the keyed-MAC slice of the auth package the broker
// uses. Satisfied by *auth.HmacManager.
type MacValidator interface {
	UpdateKey(ctx context.Context, origin, secret string) error
	UsesMac(origin string) bool
	ComputeMac(origin, nonce string) (string, error)
}

// TokenValidator is the token slice of the auth package the broker
// uses. Satisfied by *auth.Authority.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw, profile string) (string, error)
}

// Dispatcher fans a message out to plugins and aggregates the replies.
// Satisfied by *request.Correlator.
type Dispatcher interface {
	Dispatch(ctx context.Context, targets []request.Target, message map[string]any, timeout time.Duration) (*request.Result, error)
}

// ProducerControl starts and stops a plugin's event producers.
// Satisfied by *plugin.MQTTTransport.
type ProducerControl interface {
	StartEventProducer(pluginID, profile, iface, attribute string) error
	StopEventProducer(pluginID, profile, iface, attribute string) error
}

// Sink delivers an event payload to one receiver's session. Satisfied
// by the API layer's WebSocket hub.
type Sink interface {
	Deliver(receiver string, payload map[string]any) error
}

// Metrics records request and event measurements. Satisfied by
// *influxdb.Client; may be nil.
type Metrics interface {
	WriteRequestMetric(profile string, plugins int, durationMs float64, timedOut bool)
	WriteEventMetric(profile string, attribute string, subscribers int)
}

// Logger defines the logging interface used by the Broker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the composition root of the request path. It
// authenticates an inbound request, resolves its fan-out set, drives
// the dispatcher, and shapes the terminal response. It also owns the
// subscription side: subscribe/unsubscribe requests, plugin event
// routing, and session teardown.
type Broker struct {
	macs    MacValidator
	tokens  TokenValidator
	events  *event.Registry
	engine  Dispatcher
	plugins *plugin.Manager
	control ProducerControl
	sink    Sink
	metrics Metrics
	timeout time.Duration
	logger  Logger
	now     func() time.Time
}

// Config carries the broker's collaborators. All fields except
// Metrics are required.
type Config struct {
	Macs    MacValidator
	Tokens  TokenValidator
	Events  *event.Registry
	Engine  Dispatcher
	Plugins *plugin.Manager
	Control ProducerControl
	Sink    Sink
	Metrics Metrics

	// RequestTimeout bounds one plugin round trip.
	RequestTimeout time.Duration
}

// New creates a Broker.
func New(cfg Config) *Broker {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Broker{
		macs:    cfg.Macs,
		tokens:  cfg.Tokens,
		events:  cfg.Events,
		engine:  cfg.Engine,
		plugins: cfg.Plugins,
		control: cfg.Control,
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
		timeout: timeout,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the broker.
func (b *Broker) SetLogger(logger Logger) {
	b.logger = logger
}

// unauthenticatedProfiles are reachable without any credential. They
// cover availability probes, the token issuance flow itself, and
// system descriptions.
var unauthenticatedProfiles = map[string]bool{
	"availability":     true,
	"authorization":    true,
	"servicediscovery": true,
	"system":           true,
}

// HandleRequest processes one inbound request to its terminal
// response. Authentication failures resolve here and never reach a
// plugin.
func (b *Broker) HandleRequest(ctx context.Context, req Request) Response {
	started := b.now()

	if req.Key != nil {
		if err := b.macs.UpdateKey(ctx, req.Origin, *req.Key); err != nil {
			return errorResponse(CodeInvalidOrigin, "invalid origin for key registration")
		}
	}

	if resp, ok := b.authenticate(ctx, req); !ok {
		return resp
	}

	var resp Response
	var fanout int
	switch req.Action {
	case ActionDiscover:
		resp, fanout = b.handleDiscover(ctx, req)
	case ActionInvoke:
		resp, fanout = b.handleInvoke(ctx, req)
	case ActionSubscribe:
		resp = b.HandleSubscribe(ctx, req)
	case ActionUnsubscribe:
		resp = b.HandleUnsubscribe(ctx, req)
	default:
		resp = errorResponse(CodeNotSupportAction, fmt.Sprintf("unsupported action %q", req.Action))
	}

	if b.metrics != nil && (req.Action == ActionDiscover || req.Action == ActionInvoke) {
		elapsed := float64(b.now().Sub(started).Microseconds()) / 1000.0
		b.metrics.WriteRequestMetric(req.Profile, fanout, elapsed, resp.ErrorCode == CodeTimeout)
	}
	return resp
}

// authenticate resolves the caller's credential. Returns ok=false
// with the error response when the request must be rejected.
func (b *Broker) authenticate(ctx context.Context, req Request) (Response, bool) {
	if req.Origin == "" {
		return errorResponse(CodeInvalidOrigin, "origin is required"), false
	}
	if unauthenticatedProfiles[strings.ToLower(req.Profile)] {
		return Response{}, true
	}

	if req.AccessToken != "" {
		origin, err := b.tokens.ValidateToken(ctx, req.AccessToken, req.Profile)
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return errorResponse(CodeExpiredAccessToken, "access token has expired"), false
		case errors.Is(err, auth.ErrScopeNotGranted):
			return errorResponse(CodeScope, "access token does not cover this profile"), false
		case err != nil:
			return errorResponse(CodeAuthorization, "unknown access token"), false
		}
		if origin != req.Origin {
			return errorResponse(CodeAuthorization, "access token belongs to a different origin"), false
		}
		return Response{}, true
	}

	if req.Nonce != "" && b.macs.UsesMac(req.Origin) {
		computed, err := b.macs.ComputeMac(req.Origin, req.Nonce)
		if err != nil {
			return errorResponse(CodeAuthorization, "no key registered for origin"), false
		}
		if req.Mac == "" || !strings.EqualFold(computed, req.Mac) {
			return errorResponse(CodeAuthorization, "message authentication failed"), false
		}
		return Response{}, true
	}

	return errorResponse(CodeEmptyAccessToken, "no credentials supplied"), false
}

// handleDiscover fans a discovery out to every online plugin and
// merges their service lists. Each service id comes back qualified by
// its owning plugin so later single-target requests route cleanly.
// Zero online plugins is a valid, empty answer.
func (b *Broker) handleDiscover(ctx context.Context, req Request) (Response, int) {
	online := b.plugins.Online()
	targets := make([]request.Target, len(online))
	for i := range online {
		targets[i] = request.Target{PluginID: online[i].ID}
	}

	message := b.pluginMessage(req, "")
	message["profile"] = discoveryProfile
	message["attribute"] = discoveryAttribute

	result, err := b.engine.Dispatch(ctx, targets, message, b.timeout)
	if err != nil {
		b.logger.Error("discovery dispatch failed", "error", err)
		return errorResponse(CodeIllegalServerState, "discovery aborted"), len(targets)
	}

	services := make([]any, 0)
	for _, reply := range result.Replies {
		raw, ok := reply.Payload["services"].([]any)
		if !ok {
			continue
		}
		for _, entry := range raw {
			svc, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			id, _ := svc["id"].(string)
			svc["id"] = b.plugins.AppendServiceID(reply.PluginID, id)
			services = append(services, svc)
		}
	}

	if result.TimedOut {
		b.logger.Warn("discovery resolved partially",
			"replies", len(result.Replies), "targets", len(targets))
	}
	return okResponse(map[string]any{"services": services}), len(targets)
}

// handleInvoke routes one profile operation to the plugin that owns
// the addressed service.
func (b *Broker) handleInvoke(ctx context.Context, req Request) (Response, int) {
	if req.ServiceID == "" {
		return errorResponse(CodeEmptyServiceID, "serviceId is required"), 0
	}

	p, localID, err := b.plugins.PluginForServiceID(req.ServiceID)
	if err != nil {
		return errorResponse(CodeNotFoundService, fmt.Sprintf("no service %q", req.ServiceID)), 0
	}
	if p.State != plugin.StateOnline {
		return errorResponse(CodeIllegalDeviceState, fmt.Sprintf("plugin %q is offline", p.ID)), 0
	}

	message := b.pluginMessage(req, localID)
	result, err := b.engine.Dispatch(ctx, []request.Target{{PluginID: p.ID}}, message, b.timeout)
	if err != nil {
		b.logger.Error("dispatch failed", "plugin_id", p.ID, "error", err)
		return errorResponse(CodeIllegalServerState, "dispatch aborted"), 1
	}
	if len(result.Replies) == 0 {
		return errorResponse(CodeTimeout, fmt.Sprintf("plugin %q did not answer", p.ID)), 1
	}

	return b.translateReply(result.Replies[0]), 1
}

// pluginMessage builds the plugin-facing message for one request. The
// serviceId is rewritten to the plugin-local form; bookkeeping fields
// stay out of the plugin's payload namespace.
func (b *Broker) pluginMessage(req Request, localServiceID string) map[string]any {
	message := make(map[string]any, len(req.Payload)+5)
	for k, v := range req.Payload {
		message[k] = v
	}
	message["action"] = string(req.Action)
	message["profile"] = req.Profile
	if req.Interface != "" {
		message["interface"] = req.Interface
	}
	if req.Attribute != "" {
		message["attribute"] = req.Attribute
	}
	if localServiceID != "" {
		message["serviceId"] = localServiceID
	}
	return message
}

// translateReply shapes one plugin's answer into the caller-facing
// response. Plugin error codes share the client vocabulary and pass
// through; a reply without a result field is treated as a fault in
// the plugin, not in the request.
func (b *Broker) translateReply(reply request.Reply) Response {
	resultCode, ok := numericField(reply.Payload, "result")
	if !ok {
		b.logger.Warn("plugin reply missing result", "plugin_id", reply.PluginID)
		return errorResponse(CodeIllegalDeviceState, fmt.Sprintf("malformed reply from plugin %q", reply.PluginID))
	}

	if resultCode != 0 {
		code := CodeUnknown
		if c, ok := numericField(reply.Payload, "errorCode"); ok {
			code = c
		}
		message, _ := reply.Payload["errorMessage"].(string)
		if message == "" {
			message = fmt.Sprintf("plugin %q reported an error", reply.PluginID)
		}
		return errorResponse(code, message)
	}

	payload := make(map[string]any, len(reply.Payload))
	for k, v := range reply.Payload {
		switch k {
		case "correlationId", "result", "errorCode", "errorMessage":
		default:
			payload[k] = v
		}
	}
	return okResponse(payload)
}

// numericField reads an integer out of a decoded JSON payload, where
// numbers arrive as float64.
func numericField(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
