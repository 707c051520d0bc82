package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the DeviceHub MQTT namespace.
//
// All plugin traffic uses the scheme: devicehub/plugin/{plugin_id}/{channel}
// with one channel per direction of the broker protocol.
const (
	// TopicPrefixPlugin is the base for all plugin topics.
	TopicPrefixPlugin = "devicehub/plugin"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "devicehub/system"
)

// Topics provides builders for DeviceHub MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	reqTopic := topics.PluginRequest("host")
//	// Returns: "devicehub/plugin/host/request"
type Topics struct{}

// PluginRequest returns the topic carrying manager-to-plugin requests.
//
// Example: devicehub/plugin/host/request
func (Topics) PluginRequest(pluginID string) string {
	return fmt.Sprintf("%s/%s/request", TopicPrefixPlugin, pluginID)
}

// PluginResponse returns the topic carrying a plugin's correlated replies.
//
// Example: devicehub/plugin/host/response
func (Topics) PluginResponse(pluginID string) string {
	return fmt.Sprintf("%s/%s/response", TopicPrefixPlugin, pluginID)
}

// PluginEvent returns the topic carrying a plugin's unsolicited events.
//
// Example: devicehub/plugin/host/event
func (Topics) PluginEvent(pluginID string) string {
	return fmt.Sprintf("%s/%s/event", TopicPrefixPlugin, pluginID)
}

// PluginPresence returns the topic carrying a plugin's availability.
// Plugins publish a retained online payload here and configure the same
// topic as their LWT so the manager sees crashes.
//
// Example: devicehub/plugin/host/presence
func (Topics) PluginPresence(pluginID string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixPlugin, pluginID)
}

// PluginControl returns the topic carrying lifecycle commands
// (restart, stop-producer) to a plugin.
//
// Example: devicehub/plugin/host/control
func (Topics) PluginControl(pluginID string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixPlugin, pluginID)
}

// SystemStatus returns the manager's own status topic.
//
// Example: devicehub/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllPluginResponses returns a pattern matching every plugin's reply topic.
//
// Pattern: devicehub/plugin/+/response
func (Topics) AllPluginResponses() string {
	return fmt.Sprintf("%s/+/response", TopicPrefixPlugin)
}

// AllPluginEvents returns a pattern matching every plugin's event topic.
//
// Pattern: devicehub/plugin/+/event
func (Topics) AllPluginEvents() string {
	return fmt.Sprintf("%s/+/event", TopicPrefixPlugin)
}

// AllPluginPresence returns a pattern matching every plugin's presence topic.
//
// Pattern: devicehub/plugin/+/presence
func (Topics) AllPluginPresence() string {
	return fmt.Sprintf("%s/+/presence", TopicPrefixPlugin)
}

// PluginIDFromTopic extracts the plugin id segment from a topic under
// the plugin prefix. Returns the empty string for foreign topics.
func PluginIDFromTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, TopicPrefixPlugin+"/")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}
