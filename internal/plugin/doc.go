// Package plugin tracks device plugins and carries the broker protocol
// to them over MQTT.
//
// The Manager is the registry of known plugins. Plugins announce
// themselves by publishing a retained presence message; plugins
// declared in configuration are additionally launched and supervised
// as local processes by the Supervisor.
//
// Service IDs exposed to clients are plugin-qualified:
//
//	{serviceID}.{pluginID}.{domain}
//
// so a light named "hue-1" behind the "hue" plugin on the default
// domain is addressed as "hue-1.hue.devicehub.local". AppendServiceID
// and SplitServiceID convert between the client-facing and
// plugin-local forms.
//
// The MQTTTransport publishes correlated requests and lifecycle
// commands to per-plugin topics and routes the three inbound channels:
// responses to the request correlator, events to the broker, presence
// to the Manager.
package plugin
