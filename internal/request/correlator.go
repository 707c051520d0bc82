package request

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Target identifies one plugin a dispatch fans out to.
type Target struct {
	PluginID string
}

// Reply is one plugin's answer to a dispatched message. Replies that
// carry a plugin-reported error status are recorded like any other;
// only replies whose correlation id matches nothing are dropped.
type Reply struct {
	PluginID      string
	CorrelationID string
	Payload       map[string]any
}

// Result aggregates the replies of one dispatch. Replies appear in
// arrival order, not dispatch order; consumers treat the set as
// unordered. TimedOut marks a partial result.
type Result struct {
	Replies  []Reply
	TimedOut bool
}

// Transport delivers messages to plugins and restarts unresponsive
// ones. Implemented by the plugin transport layer.
type Transport interface {
	Send(ctx context.Context, pluginID, correlationID string, message map[string]any) error
	Restart(pluginID string) error
}

// Logger defines the logging interface used by the Correlator.
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

// pendingSlot routes one correlation id back to its dispatch. The
// channel is buffered for the dispatch's full fan-out, so OnReply
// never blocks on a live dispatch.
type pendingSlot struct {
	pluginID string
	replies  chan<- Reply
}

// Correlator is the fan-out/fan-in engine: it assigns a fresh
// correlation id to each outbound message, tracks which ids are still
// outstanding and releases the waiting caller when every reply has
// arrived or the deadline fires.
//
// Thread Safety: any number of Dispatch calls may run concurrently;
// each owns its own reply channel, so resolving one dispatch never
// wakes or blocks another. OnReply is called from the transport's
// receive path and only touches the shared id table.
type Correlator struct {
	transport Transport
	logger    Logger

	mu      sync.Mutex
	pending map[string]*pendingSlot
}

// NewCorrelator creates a correlator over the given transport.
func NewCorrelator(transport Transport, logger Logger) *Correlator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Correlator{
		transport: transport,
		logger:    logger,
		pending:   make(map[string]*pendingSlot),
	}
}

// Dispatch sends message to every target and waits for their replies.
//
// Zero targets resolve immediately with an empty result; no plugins
// means no answers, not an error. On timeout the partial result is
// returned with TimedOut set and every silent plugin is restarted
// through the transport, fire-and-forget, without extending the wait.
// Once Dispatch returns, all of its correlation ids are retired and
// late replies for them are discarded.
func (c *Correlator) Dispatch(ctx context.Context, targets []Target, message map[string]any, timeout time.Duration) (*Result, error) {
	if len(targets) == 0 {
		return &Result{Replies: []Reply{}}, nil
	}

	replies := make(chan Reply, len(targets))
	ids := make(map[string]string, len(targets)) // correlation id -> plugin id

	c.mu.Lock()
	for _, t := range targets {
		id := uuid.NewString()
		ids[id] = t.PluginID
		c.pending[id] = &pendingSlot{pluginID: t.PluginID, replies: replies}
	}
	c.mu.Unlock()

	// Retire every id this dispatch owns, resolved or not.
	defer func() {
		c.mu.Lock()
		for id := range ids {
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	for id, pluginID := range ids {
		if err := c.transport.Send(ctx, pluginID, id, message); err != nil {
			// A send failure means this plugin will never answer;
			// record it as an unanswered slot and let the timeout
			// path handle recovery.
			c.logger.Warn("dispatch send failed",
				"plugin", pluginID,
				"correlation_id", id,
				"error", err,
			)
		}
	}

	result := &Result{Replies: make([]Reply, 0, len(targets))}
	answered := make(map[string]bool, len(targets))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(result.Replies) < len(targets) {
		select {
		case rep := <-replies:
			result.Replies = append(result.Replies, rep)
			answered[rep.CorrelationID] = true
		case <-timer.C:
			result.TimedOut = true
			c.recoverSilent(ids, answered)
			return result, nil
		case <-ctx.Done():
			result.TimedOut = true
			return result, ctx.Err()
		}
	}

	return result, nil
}

// OnReply is called by the transport when a plugin answers. Unknown
// ids, already resolved or foreign, are discarded.
func (c *Correlator) OnReply(correlationID string, payload map[string]any) {
	c.mu.Lock()
	slot, ok := c.pending[correlationID]
	if ok {
		// One reply per id: retire it before handing the reply over.
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("discarding reply with unknown correlation id",
			"correlation_id", correlationID)
		return
	}

	slot.replies <- Reply{
		PluginID:      slot.pluginID,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// Outstanding returns the number of correlation ids still awaiting a
// reply, across all dispatches.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// recoverSilent restarts every plugin that never answered, once per
// plugin even when several ids pointed at it.
func (c *Correlator) recoverSilent(ids map[string]string, answered map[string]bool) {
	restarted := make(map[string]bool)
	for id, pluginID := range ids {
		if answered[id] || restarted[pluginID] {
			continue
		}
		restarted[pluginID] = true
		c.logger.Warn("plugin did not answer before deadline, restarting",
			"plugin", pluginID)
		go func(pluginID string) {
			if err := c.transport.Restart(pluginID); err != nil {
				c.logger.Error("plugin restart failed",
					"plugin", pluginID,
					"error", err,
				)
			}
		}(pluginID)
	}
}
