package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/devicehub-core/internal/infrastructure/mqtt"
)

// Conn is the slice of the MQTT client the transport needs. Satisfied
// by *mqtt.Client; tests substitute a fake.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// ReplySink receives correlated plugin responses. Satisfied by the
// request correlator.
type ReplySink interface {
	OnReply(correlationID string, payload map[string]any)
}

// EventSink receives unsolicited plugin events. Satisfied by the
// broker.
type EventSink interface {
	HandlePluginEvent(pluginID string, payload map[string]any)
}

// Restarter restarts a locally-supervised plugin process. Satisfied by
// the process supervisor set.
type Restarter interface {
	Restart(ctx context.Context, pluginID string) error
}

// presenceMessage is the payload plugins publish (retained) on their
// presence topic, and configure as their LWT with status "offline".
type presenceMessage struct {
	Status   string   `json:"status"`
	Name     string   `json:"name,omitempty"`
	Version  string   `json:"version,omitempty"`
	Profiles []string `json:"profiles,omitempty"`
}

// controlMessage is the payload for lifecycle commands on a plugin's
// control topic.
type controlMessage struct {
	Command   string `json:"command"`
	Profile   string `json:"profile,omitempty"`
	Interface string `json:"interface,omitempty"`
	Attribute string `json:"attribute,omitempty"`
}

// MQTTTransport carries the broker protocol over MQTT. Outbound it
// publishes requests and control commands to per-plugin topics;
// inbound it routes responses to the reply sink, events to the event
// sink, and presence to the plugin manager.
type MQTTTransport struct {
	conn      Conn
	topics    mqtt.Topics
	qos       byte
	manager   *Manager
	replies   ReplySink
	events    EventSink
	restarter Restarter
	logger    Logger

	// onPresence, when set, observes every presence change. Used to
	// record plugin connectivity metrics.
	onPresence func(pluginID string, online bool)

	// restartTimeout bounds a supervised process restart.
	restartTimeout time.Duration
}

// NewMQTTTransport creates the transport. The reply and event sinks
// are wired afterwards with SetReplySink and SetEventSink, because the
// correlator and broker are constructed on top of the transport.
func NewMQTTTransport(conn Conn, manager *Manager, qos byte) *MQTTTransport {
	return &MQTTTransport{
		conn:           conn,
		qos:            qos,
		manager:        manager,
		logger:         noopLogger{},
		restartTimeout: 30 * time.Second,
	}
}

// SetLogger sets the logger for the transport.
func (t *MQTTTransport) SetLogger(logger Logger) {
	t.logger = logger
}

// SetReplySink wires the consumer of correlated responses.
func (t *MQTTTransport) SetReplySink(sink ReplySink) {
	t.replies = sink
}

// SetEventSink wires the consumer of unsolicited plugin events.
func (t *MQTTTransport) SetEventSink(sink EventSink) {
	t.events = sink
}

// SetRestarter wires the process supervisor used to restart
// locally-managed plugins. Without one, Restart falls back to a
// restart command on the plugin's control topic.
func (t *MQTTTransport) SetRestarter(r Restarter) {
	t.restarter = r
}

// SetOnPresence registers an observer for presence changes.
func (t *MQTTTransport) SetOnPresence(fn func(pluginID string, online bool)) {
	t.onPresence = fn
}

// Start subscribes to the inbound plugin topics. Call after the sinks
// are wired; messages arriving for a nil sink are dropped.
func (t *MQTTTransport) Start() error {
	if err := t.conn.Subscribe(t.topics.AllPluginResponses(), t.qos, t.handleResponse); err != nil {
		return fmt.Errorf("subscribing to plugin responses: %w", err)
	}
	if err := t.conn.Subscribe(t.topics.AllPluginEvents(), t.qos, t.handleEvent); err != nil {
		return fmt.Errorf("subscribing to plugin events: %w", err)
	}
	if err := t.conn.Subscribe(t.topics.AllPluginPresence(), t.qos, t.handlePresence); err != nil {
		return fmt.Errorf("subscribing to plugin presence: %w", err)
	}
	return nil
}

// Send publishes a correlated request to one plugin. The correlation
// id is stamped into the message; the plugin echoes it back on its
// response topic.
func (t *MQTTTransport) Send(ctx context.Context, pluginID, correlationID string, message map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope := make(map[string]any, len(message)+1)
	for k, v := range message {
		envelope[k] = v
	}
	envelope["correlationId"] = correlationID

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	if err := t.conn.Publish(t.topics.PluginRequest(pluginID), payload, t.qos, false); err != nil {
		return fmt.Errorf("publishing request to %q: %w", pluginID, err)
	}

	t.logger.Debug("request sent", "plugin_id", pluginID, "correlation_id", correlationID)
	return nil
}

// Restart recovers an unresponsive plugin. Supervised plugins get a
// process restart; unmanaged ones get a restart command over MQTT and
// have to act on it themselves.
func (t *MQTTTransport) Restart(pluginID string) error {
	p, err := t.manager.Get(pluginID)
	if err != nil {
		return err
	}

	if p.Managed && t.restarter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.restartTimeout)
		defer cancel()
		t.logger.Warn("restarting plugin process", "plugin_id", pluginID)
		return t.restarter.Restart(ctx, pluginID)
	}

	t.logger.Warn("requesting plugin restart over control topic", "plugin_id", pluginID)
	return t.publishControl(pluginID, controlMessage{Command: "restart"})
}

// StartEventProducer tells a plugin to begin emitting events for one
// profile attribute. Sent when the attribute gains its first
// subscriber.
func (t *MQTTTransport) StartEventProducer(pluginID, profile, iface, attribute string) error {
	return t.publishControl(pluginID, controlMessage{
		Command:   "startEvent",
		Profile:   profile,
		Interface: iface,
		Attribute: attribute,
	})
}

// StopEventProducer tells a plugin to stop emitting events for one
// profile attribute. Sent when the attribute's last subscriber leaves.
func (t *MQTTTransport) StopEventProducer(pluginID, profile, iface, attribute string) error {
	return t.publishControl(pluginID, controlMessage{
		Command:   "stopEvent",
		Profile:   profile,
		Interface: iface,
		Attribute: attribute,
	})
}

func (t *MQTTTransport) publishControl(pluginID string, msg controlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding control message: %w", err)
	}
	if err := t.conn.Publish(t.topics.PluginControl(pluginID), payload, t.qos, false); err != nil {
		return fmt.Errorf("publishing control to %q: %w", pluginID, err)
	}
	return nil
}

// handleResponse routes one correlated reply to the reply sink.
func (t *MQTTTransport) handleResponse(topic string, payload []byte) error {
	pluginID := mqtt.PluginIDFromTopic(topic)
	if pluginID == "" {
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.logger.Warn("discarding malformed response", "plugin_id", pluginID, "error", err)
		return nil
	}

	correlationID, _ := body["correlationId"].(string)
	if correlationID == "" {
		t.logger.Warn("discarding response without correlation id", "plugin_id", pluginID)
		return nil
	}

	if t.replies != nil {
		t.replies.OnReply(correlationID, body)
	}
	return nil
}

// handleEvent routes one unsolicited event to the event sink.
func (t *MQTTTransport) handleEvent(topic string, payload []byte) error {
	pluginID := mqtt.PluginIDFromTopic(topic)
	if pluginID == "" {
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.logger.Warn("discarding malformed event", "plugin_id", pluginID, "error", err)
		return nil
	}

	if t.events != nil {
		t.events.HandlePluginEvent(pluginID, body)
	}
	return nil
}

// handlePresence updates the plugin registry from a presence message.
func (t *MQTTTransport) handlePresence(topic string, payload []byte) error {
	pluginID := mqtt.PluginIDFromTopic(topic)
	if pluginID == "" {
		return nil
	}

	var msg presenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.logger.Warn("discarding malformed presence", "plugin_id", pluginID, "error", err)
		return nil
	}

	online := msg.Status == "online"
	if online {
		if err := t.manager.MarkOnline(pluginID, msg.Name, msg.Version, msg.Profiles); err != nil {
			t.logger.Warn("rejecting presence", "plugin_id", pluginID, "error", err)
			return nil
		}
	} else {
		t.manager.MarkOffline(pluginID)
	}

	if t.onPresence != nil {
		t.onPresence(pluginID, online)
	}
	return nil
}
