// Package mqtt provides MQTT client connectivity for DeviceHub Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// DeviceHub uses MQTT as the internal message bus connecting the Manager
// to device plugin processes. The broker (Mosquitto) decouples the
// Manager from plugin-specific implementations.
//
//	DeviceHub Core ↔ MQTT Broker ↔ Device Plugins
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all plugin replies
//	err = client.Subscribe(mqtt.Topics{}.AllPluginResponses(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Send a request to one plugin
//	topic := mqtt.Topics{}.PluginRequest("host")
//	client.Publish(topic, []byte(`{"action":"GET"}`), 1, false)
package mqtt
