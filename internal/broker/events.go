package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/devicehub-core/internal/event"
)

// normalizeSignal lowercases a signal tuple so producer control
// commands always match the casing the registry stores.
func normalizeSignal(profile, iface, attribute string) (string, string, string) {
	return strings.ToLower(profile), strings.ToLower(iface), strings.ToLower(attribute)
}

// HandleSubscribe registers an event subscription for the caller. The
// first subscriber for a signal also starts the plugin-side producer.
func (b *Broker) HandleSubscribe(ctx context.Context, req Request) Response {
	if req.ServiceID == "" || req.Profile == "" || req.Attribute == "" || req.Receiver == "" {
		return errorResponse(CodeInvalidRequestParameter, "serviceId, profile, attribute and receiver are required")
	}

	p, _, err := b.plugins.PluginForServiceID(req.ServiceID)
	if err != nil {
		return errorResponse(CodeNotFoundService, fmt.Sprintf("no service %q", req.ServiceID))
	}

	first, err := b.events.Add(event.Subscription{
		ServiceID:   req.ServiceID,
		Profile:     req.Profile,
		Interface:   req.Interface,
		Attribute:   req.Attribute,
		Origin:      req.Origin,
		Receiver:    req.Receiver,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		return errorResponse(CodeInvalidRequestParameter, "invalid subscription")
	}

	if first {
		profile, iface, attribute := normalizeSignal(req.Profile, req.Interface, req.Attribute)
		if err := b.control.StartEventProducer(p.ID, profile, iface, attribute); err != nil {
			b.logger.Warn("starting event producer",
				"plugin_id", p.ID, "profile", profile, "attribute", attribute, "error", err)
		}
	}
	return okResponse(nil)
}

// HandleUnsubscribe removes an event subscription. The last
// subscriber out also stops the plugin-side producer.
func (b *Broker) HandleUnsubscribe(ctx context.Context, req Request) Response {
	if req.ServiceID == "" || req.Profile == "" || req.Attribute == "" || req.Receiver == "" {
		return errorResponse(CodeInvalidRequestParameter, "serviceId, profile, attribute and receiver are required")
	}

	err := b.events.Remove(event.Subscription{
		ServiceID: req.ServiceID,
		Profile:   req.Profile,
		Interface: req.Interface,
		Attribute: req.Attribute,
		Origin:    req.Origin,
		Receiver:  req.Receiver,
	})
	if errors.Is(err, event.ErrNotFound) {
		return errorResponse(CodeInvalidRequestParameter, "no matching subscription")
	}
	if err != nil {
		return errorResponse(CodeIllegalServerState, "unsubscribe failed")
	}

	b.stopProducerIfUnwatched(req.ServiceID, req.Profile, req.Interface, req.Attribute)
	return okResponse(nil)
}

// HandlePluginEvent routes one unsolicited plugin event to every
// matching subscriber. A signal nobody watches any more gets its
// producer stopped instead. Implements the transport's event sink.
func (b *Broker) HandlePluginEvent(pluginID string, payload map[string]any) {
	profile, _ := payload["profile"].(string)
	iface, _ := payload["interface"].(string)
	attribute, _ := payload["attribute"].(string)
	localID, _ := payload["serviceId"].(string)
	serviceID := b.plugins.AppendServiceID(pluginID, localID)

	subs := b.events.List(event.Filter{
		ServiceID: serviceID,
		Profile:   profile,
		Interface: iface,
		Attribute: attribute,
	})
	if len(subs) == 0 {
		b.logger.Debug("stopping unwatched producer",
			"plugin_id", pluginID, "profile", profile, "attribute", attribute)
		profile, iface, attribute := normalizeSignal(profile, iface, attribute)
		if err := b.control.StopEventProducer(pluginID, profile, iface, attribute); err != nil {
			b.logger.Warn("stopping event producer", "plugin_id", pluginID, "error", err)
		}
		return
	}

	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["serviceId"] = serviceID

	for _, sub := range subs {
		if err := b.sink.Deliver(sub.Receiver, out); err != nil {
			b.logger.Warn("delivering event", "receiver", sub.Receiver, "error", err)
		}
	}
	if b.metrics != nil {
		b.metrics.WriteEventMetric(profile, attribute, len(subs))
	}
}

// HandleSessionClosed tears down every subscription owned by one
// receiver. Called by the API layer when a WebSocket session ends.
func (b *Broker) HandleSessionClosed(receiver string) {
	subs := b.events.ListByReceiver(receiver)
	if !b.events.RemoveAllForReceiver(receiver) {
		return
	}
	b.logger.Info("session subscriptions removed", "receiver", receiver, "count", len(subs))
	for _, sub := range subs {
		b.stopProducerIfUnwatched(sub.ServiceID, sub.Profile, sub.Interface, sub.Attribute)
	}
}

// HandleOriginRevoked tears down everything an origin holds beyond
// its client record: the HMAC key and every subscription. Called when
// a client's access is revoked.
func (b *Broker) HandleOriginRevoked(ctx context.Context, origin string) {
	if err := b.macs.UpdateKey(ctx, origin, ""); err != nil {
		b.logger.Warn("clearing hmac key", "origin", origin, "error", err)
	}

	subs := b.events.List(event.Filter{})
	if !b.events.RemoveAllForOrigin(origin) {
		return
	}
	for _, sub := range subs {
		if sub.Origin != origin {
			continue
		}
		b.stopProducerIfUnwatched(sub.ServiceID, sub.Profile, sub.Interface, sub.Attribute)
	}
}

// stopProducerIfUnwatched stops a plugin's producer for one signal
// when its last subscriber is gone.
func (b *Broker) stopProducerIfUnwatched(serviceID, profile, iface, attribute string) {
	profile, iface, attribute = normalizeSignal(profile, iface, attribute)
	remaining := b.events.List(event.Filter{
		ServiceID: serviceID,
		Profile:   profile,
		Interface: iface,
		Attribute: attribute,
	})
	if len(remaining) > 0 {
		return
	}

	p, _, err := b.plugins.PluginForServiceID(serviceID)
	if err != nil {
		return
	}
	if err := b.control.StopEventProducer(p.ID, profile, iface, attribute); err != nil {
		b.logger.Warn("stopping event producer", "plugin_id", p.ID, "error", err)
	}
}
