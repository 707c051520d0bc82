package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/devicehub-core/internal/infrastructure/mqtt"
)

// fakeConn records publishes and lets tests inject inbound messages
// through the registered subscription handlers.
type fakeConn struct {
	mu        sync.Mutex
	published []fakeMessage
	handlers  map[string]mqtt.MessageHandler
	pubErr    error
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeConn) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, fakeMessage{topic: topic, payload: payload})
	return nil
}

func (f *fakeConn) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

// deliver simulates a broker delivering payload on topic by invoking
// the wildcard handler subscribed for that channel.
func (f *fakeConn) deliver(t *testing.T, pattern, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[pattern]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed for %q", pattern)
	}
	if err := h(topic, payload); err != nil {
		t.Fatalf("handler(%q) error = %v", topic, err)
	}
}

func (f *fakeConn) lastPublished(t *testing.T) fakeMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	return f.published[len(f.published)-1]
}

type capturingReplySink struct {
	mu      sync.Mutex
	replies []map[string]any
	ids     []string
}

func (c *capturingReplySink) OnReply(correlationID string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, correlationID)
	c.replies = append(c.replies, payload)
}

type capturingEventSink struct {
	mu      sync.Mutex
	plugins []string
	events  []map[string]any
}

func (c *capturingEventSink) HandlePluginEvent(pluginID string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins = append(c.plugins, pluginID)
	c.events = append(c.events, payload)
}

type fakeRestarter struct {
	mu       sync.Mutex
	restarts []string
	err      error
}

func (f *fakeRestarter) Restart(_ context.Context, pluginID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, pluginID)
	return f.err
}

func newTestTransport(t *testing.T) (*MQTTTransport, *fakeConn, *Manager) {
	t.Helper()
	conn := newFakeConn()
	m := NewManager("devicehub.local")
	tr := NewMQTTTransport(conn, m, 1)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return tr, conn, m
}

func TestTransport_SendStampsCorrelationID(t *testing.T) {
	tr, conn, _ := newTestTransport(t)

	msg := map[string]any{"profile": "light", "attribute": "status"}
	if err := tr.Send(context.Background(), "hue", "corr-1", msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	pub := conn.lastPublished(t)
	if pub.topic != "devicehub/plugin/hue/request" {
		t.Errorf("topic = %q, want %q", pub.topic, "devicehub/plugin/hue/request")
	}

	var body map[string]any
	if err := json.Unmarshal(pub.payload, &body); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if body["correlationId"] != "corr-1" {
		t.Errorf("correlationId = %v, want corr-1", body["correlationId"])
	}
	if body["profile"] != "light" {
		t.Errorf("profile = %v, want light", body["profile"])
	}

	// The caller's map must not be mutated by the stamping.
	if _, ok := msg["correlationId"]; ok {
		t.Error("Send() mutated the caller's message")
	}
}

func TestTransport_SendPublishError(t *testing.T) {
	tr, conn, _ := newTestTransport(t)
	conn.pubErr = errors.New("broker gone")

	if err := tr.Send(context.Background(), "hue", "corr-1", map[string]any{}); err == nil {
		t.Fatal("Send() error = nil, want publish failure")
	}
}

func TestTransport_SendCancelledContext(t *testing.T) {
	tr, conn, _ := newTestTransport(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Send(ctx, "hue", "corr-1", map[string]any{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.published) != 0 {
		t.Error("Send() published despite cancelled context")
	}
}

func TestTransport_ResponseRoutedToReplySink(t *testing.T) {
	tr, conn, _ := newTestTransport(t)
	sink := &capturingReplySink{}
	tr.SetReplySink(sink)

	payload, _ := json.Marshal(map[string]any{"correlationId": "corr-9", "result": float64(0)})
	conn.deliver(t, "devicehub/plugin/+/response", "devicehub/plugin/hue/response", payload)

	if len(sink.ids) != 1 || sink.ids[0] != "corr-9" {
		t.Fatalf("reply ids = %v, want [corr-9]", sink.ids)
	}
}

func TestTransport_ResponseWithoutCorrelationIDDropped(t *testing.T) {
	tr, conn, _ := newTestTransport(t)
	sink := &capturingReplySink{}
	tr.SetReplySink(sink)

	conn.deliver(t, "devicehub/plugin/+/response", "devicehub/plugin/hue/response", []byte(`{"result":0}`))
	conn.deliver(t, "devicehub/plugin/+/response", "devicehub/plugin/hue/response", []byte(`not json`))

	if len(sink.ids) != 0 {
		t.Errorf("reply ids = %v, want none", sink.ids)
	}
}

func TestTransport_EventRoutedToEventSink(t *testing.T) {
	tr, conn, _ := newTestTransport(t)
	sink := &capturingEventSink{}
	tr.SetEventSink(sink)

	payload, _ := json.Marshal(map[string]any{"profile": "light", "attribute": "status"})
	conn.deliver(t, "devicehub/plugin/+/event", "devicehub/plugin/zwave/event", payload)

	if len(sink.plugins) != 1 || sink.plugins[0] != "zwave" {
		t.Fatalf("event plugins = %v, want [zwave]", sink.plugins)
	}
	if sink.events[0]["profile"] != "light" {
		t.Errorf("event profile = %v, want light", sink.events[0]["profile"])
	}
}

func TestTransport_PresenceUpdatesManager(t *testing.T) {
	tr, conn, m := newTestTransport(t)

	var observed []string
	tr.SetOnPresence(func(pluginID string, online bool) {
		observed = append(observed, pluginID)
	})

	online, _ := json.Marshal(presenceMessage{
		Status:   "online",
		Name:     "Hue Lights",
		Version:  "2.0.1",
		Profiles: []string{"light"},
	})
	conn.deliver(t, "devicehub/plugin/+/presence", "devicehub/plugin/hue/presence", online)

	p, err := m.Get("hue")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.State != StateOnline || p.Name != "Hue Lights" {
		t.Errorf("plugin = %+v, want online Hue Lights", p)
	}

	offline, _ := json.Marshal(presenceMessage{Status: "offline"})
	conn.deliver(t, "devicehub/plugin/+/presence", "devicehub/plugin/hue/presence", offline)

	p, _ = m.Get("hue")
	if p.State != StateOffline {
		t.Errorf("State = %q, want %q after LWT", p.State, StateOffline)
	}
	if len(observed) != 2 {
		t.Errorf("presence observer fired %d times, want 2", len(observed))
	}
}

func TestTransport_RestartManagedPluginUsesSupervisor(t *testing.T) {
	tr, conn, m := newTestTransport(t)
	restarter := &fakeRestarter{}
	tr.SetRestarter(restarter)
	_ = m.Register("knx", "KNX", true)

	if err := tr.Restart("knx"); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if len(restarter.restarts) != 1 || restarter.restarts[0] != "knx" {
		t.Errorf("restarts = %v, want [knx]", restarter.restarts)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.published) != 0 {
		t.Error("managed restart should not publish a control message")
	}
}

func TestTransport_RestartUnmanagedPluginUsesControlTopic(t *testing.T) {
	tr, conn, m := newTestTransport(t)
	_ = m.MarkOnline("hue", "Hue", "", nil)

	if err := tr.Restart("hue"); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	pub := conn.lastPublished(t)
	if pub.topic != "devicehub/plugin/hue/control" {
		t.Errorf("topic = %q, want %q", pub.topic, "devicehub/plugin/hue/control")
	}
	var msg controlMessage
	if err := json.Unmarshal(pub.payload, &msg); err != nil {
		t.Fatalf("unmarshal control: %v", err)
	}
	if msg.Command != "restart" {
		t.Errorf("command = %q, want restart", msg.Command)
	}
}

func TestTransport_RestartUnknownPlugin(t *testing.T) {
	tr, _, _ := newTestTransport(t)

	if err := tr.Restart("ghost"); !errors.Is(err, ErrPluginNotFound) {
		t.Fatalf("Restart() error = %v, want ErrPluginNotFound", err)
	}
}

func TestTransport_EventProducerCommands(t *testing.T) {
	tr, conn, _ := newTestTransport(t)

	if err := tr.StartEventProducer("hue", "light", "", "status"); err != nil {
		t.Fatalf("StartEventProducer() error = %v", err)
	}
	pub := conn.lastPublished(t)
	var msg controlMessage
	if err := json.Unmarshal(pub.payload, &msg); err != nil {
		t.Fatalf("unmarshal control: %v", err)
	}
	if msg.Command != "startEvent" || msg.Profile != "light" || msg.Attribute != "status" {
		t.Errorf("control = %+v, want startEvent light/status", msg)
	}

	if err := tr.StopEventProducer("hue", "light", "", "status"); err != nil {
		t.Fatalf("StopEventProducer() error = %v", err)
	}
	pub = conn.lastPublished(t)
	if err := json.Unmarshal(pub.payload, &msg); err != nil {
		t.Fatalf("unmarshal control: %v", err)
	}
	if msg.Command != "stopEvent" {
		t.Errorf("command = %q, want stopEvent", msg.Command)
	}
}
