// Package mqtt provides MQTT client connectivity for the controller.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Availability reporting through Last Will and Testament (LWT)
//   - Connection health monitoring
//
// # Architecture
//
// The controller talks to Home Assistant over MQTT. Discovery messages,
// endpoint state and availability are published by the controller; command
// topics ("<endpoint>/set") are subscribed to.
//
//	floorheat ↔ MQTT Broker ↔ Home Assistant
//
// # Security Considerations
//
//   - Enable TLS for brokers outside the local network (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{}.Availability("FHCP2mqtt"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Command("FHCP2mqtt/inlet"), 1,
//	    func(topic string, payload []byte) error {
//	        return apply(payload)
//	    })
//
//	client.Publish("FHCP2mqtt/inlet", []byte(`{"state":true}`), 1, false)
package mqtt
