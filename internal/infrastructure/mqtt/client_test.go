package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/floorheat-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "floorheat-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "heat", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "floorheat-test" {
		t.Errorf("ClientID = %q, want floorheat-test", opts.ClientID)
	}
	if opts.Username != "heat" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want heat/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS 1.2 minimum not configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "FHCP2mqtt/controller")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "FHCP2mqtt/controller" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if string(opts.WillPayload) != `{"available":false}` {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want true/1", opts.WillRetained, opts.WillQos)
	}
}

func TestAvailabilityPayload(t *testing.T) {
	if got := string(availabilityPayload(true)); got != `{"available":true}` {
		t.Errorf("availabilityPayload(true) = %s", got)
	}
	if got := string(availabilityPayload(false)); got != `{"available":false}` {
		t.Errorf("availabilityPayload(false) = %s", got)
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "DiscoveryConfig",
			builder: func() string {
				return Topics{}.DiscoveryConfig("homeassistant", "switch", "1a2b3c4d", "state")
			},
			expected: "homeassistant/switch/1a2b3c4d/state/config",
		},
		{
			name: "DiscoveryConfigDefaultPrefix",
			builder: func() string {
				return Topics{}.DiscoveryConfig("", "sensor", "00000000", "temperature")
			},
			expected: "homeassistant/sensor/00000000/temperature/config",
		},
		{
			name: "State",
			builder: func() string {
				return Topics{}.State("FHCP2mqtt/inlet")
			},
			expected: "FHCP2mqtt/inlet",
		},
		{
			name: "Command",
			builder: func() string {
				return Topics{}.Command("FHCP2mqtt/zone/2")
			},
			expected: "FHCP2mqtt/zone/2/set",
		},
		{
			name: "Availability",
			builder: func() string {
				return Topics{}.Availability("FHCP2mqtt")
			},
			expected: "FHCP2mqtt/controller",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "FHCP2mqtt/inlet", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "FHCP2mqtt/inlet", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "FHCP2mqtt/inlet", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("a/set", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("a/set", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe("a/set", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
	if len(client.subscriptions) != 0 {
		t.Error("failed Subscribe left a tracked subscription")
	}
}

func TestUnsubscribe_ForgetsWhileDisconnected(t *testing.T) {
	client := &Client{subscriptions: map[string]subscription{
		"FHCP2mqtt/inlet/set":  {topic: "FHCP2mqtt/inlet/set", qos: 0},
		"homeassistant/status": {topic: "homeassistant/status", qos: 0},
	}}

	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Unsubscribe("FHCP2mqtt/inlet/set"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
	if _, ok := client.subscriptions["FHCP2mqtt/inlet/set"]; ok {
		t.Error("unsubscribed topic would be restored on reconnect")
	}
	if _, ok := client.subscriptions["homeassistant/status"]; !ok {
		t.Error("unrelated subscription dropped")
	}
}

func TestPublishRetained_NotConnected(t *testing.T) {
	client := &Client{cfg: testConfig()}
	err := client.PublishRetained("homeassistant/switch/1a2b3c4d/state/config", []byte("{}"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestWrapHandler(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	failing := client.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "FHCP2mqtt/inlet/set", payload: []byte("{")})

	panicking := client.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "FHCP2mqtt/inlet/set"})

	var got string
	ok := client.wrapHandler(func(_ string, p []byte) error {
		got = string(p)
		return nil
	})
	ok(nil, fakeMessage{topic: "FHCP2mqtt/inlet/set", payload: []byte(`{"state":true}`)})

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
	if got != `{"state":true}` {
		t.Errorf("handler payload = %q", got)
	}
}

func TestSetLogger(t *testing.T) {
	client := &Client{}
	client.SetLogger(&mockLogger{})
	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}
	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}
