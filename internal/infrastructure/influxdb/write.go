package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRequestMetric records one completed broker round trip.
//
// This is the primary method for recording request handling statistics.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - profile: The profile the request addressed (e.g., "light")
//   - plugins: Number of plugins the request fanned out to
//   - durationMs: Wall time from dispatch to resolution in milliseconds
//   - timedOut: Whether the dispatch deadline elapsed before all replies
//
// Example:
//
//	client.WriteRequestMetric("serviceDiscovery", 3, 152.4, false)
func (c *Client) WriteRequestMetric(profile string, plugins int, durationMs float64, timedOut bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"broker_requests",
		map[string]string{
			"profile": profile,
		},
		map[string]interface{}{
			"plugins":     plugins,
			"duration_ms": durationMs,
			"timed_out":   timedOut,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEventMetric records one plugin event delivery.
//
// Used for tracking event throughput per signal and how many
// subscribers each delivery reached.
//
// Parameters:
//   - profile: Event profile (e.g., "deviceorientation")
//   - attribute: Event attribute within the profile
//   - subscribers: Number of sinks the event was delivered to
func (c *Client) WriteEventMetric(profile string, attribute string, subscribers int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"broker_events",
		map[string]string{
			"profile":   profile,
			"attribute": attribute,
		},
		map[string]interface{}{
			"subscribers": subscribers,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePluginMetric records a plugin lifecycle observation such as a
// restart triggered by timeout recovery.
//
// Parameters:
//   - pluginID: Plugin identifier
//   - event: Lifecycle event name (e.g., "restart", "offline", "online")
func (c *Client) WritePluginMetric(pluginID string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"plugin_lifecycle",
		map[string]string{
			"plugin_id": pluginID,
			"event":     event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "hub-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
