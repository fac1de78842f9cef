package hass

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/floorheat-core/internal/infrastructure/mqtt"
)

const (
	// stateQoS is used for endpoint state and command subscriptions.
	stateQoS byte = 0

	// birthPayload is what Home Assistant publishes on <prefix>/status when
	// it comes online.
	birthPayload = "online"
)

// Publisher is the part of the MQTT client Discovery needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by Discovery.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Device is the device block attached to every discovery config.
type Device struct {
	Identifier   string `json:"identifiers"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Name         string `json:"name"`
	SWVersion    string `json:"sw_version,omitempty"`
}

// Origin is the origin block attached to every discovery config.
type Origin struct {
	Name string `json:"name"`
	SW   string `json:"sw,omitempty"`
	URL  string `json:"url,omitempty"`
}

type availability struct {
	Topic         string `json:"topic"`
	ValueTemplate string `json:"value_template"`
}

// Command describes one attribute command received over MQTT.
type Command struct {
	Endpoint  string
	Attribute string
	Value     json.RawMessage
	Err       error
}

// CommandObserver is called after every attribute command, including
// failed ones.
type CommandObserver func(Command)

// Options configures a Discovery.
type Options struct {
	// Prefix is the discovery prefix, "homeassistant" when empty.
	Prefix string

	Device Device
	Origin Origin

	Logger   Logger
	Observer CommandObserver
}

// Discovery announces endpoints and their attributes to Home Assistant.
type Discovery struct {
	pub          Publisher
	prefix       string
	device       Device
	origin       Origin
	availability availability
	logger       Logger
	uniqueID     string

	mu         sync.Mutex
	nextID     uint32
	endpoints  []*Endpoint
	controller *Endpoint

	available atomic.Bool

	observerMu sync.RWMutex
	observer   CommandObserver
}

// New creates a Discovery and announces the controller endpoint
// "<device name>/controller".
//
// It also subscribes to "<prefix>/status" so that every config and state is
// published again when Home Assistant restarts.
//
// Parameters:
//   - pub: Connected MQTT publisher
//   - opts: Device description and optional logger/observer
//
// Returns:
//   - *Discovery: Ready for endpoints to be added
//   - error: ErrNoPublisher, ErrNoIdentifier or an MQTT error
func New(pub Publisher, opts Options) (*Discovery, error) {
	if pub == nil {
		return nil, ErrNoPublisher
	}
	if opts.Device.Identifier == "" {
		return nil, ErrNoIdentifier
	}
	if opts.Device.Name == "" {
		opts.Device.Name = opts.Device.Identifier
	}
	if opts.Prefix == "" {
		opts.Prefix = mqtt.DefaultDiscoveryPrefix
	}
	if opts.Origin.Name == "" {
		opts.Origin.Name = "floorheat-core"
	}

	id := identifierID(opts.Device.Identifier)
	topics := mqtt.Topics{}
	controllerTopic := topics.Availability(opts.Device.Name)

	d := &Discovery{
		pub:    pub,
		prefix: strings.TrimSuffix(opts.Prefix, "/"),
		device: opts.Device,
		origin: opts.Origin,
		availability: availability{
			Topic:         controllerTopic,
			ValueTemplate: "{{ value_json.available }}",
		},
		logger:   opts.Logger,
		uniqueID: uniqueID(id),
		nextID:   id,
		observer: opts.Observer,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	d.available.Store(true)

	controller, err := d.Endpoint(controllerTopic, false)
	if err != nil {
		return nil, err
	}
	if err := controller.Add(BinarySensor("available", Value(d.available.Load), "connectivity")); err != nil {
		return nil, err
	}
	d.controller = controller

	if err := pub.Subscribe(d.prefix+"/status", stateQoS, d.handleBirth); err != nil {
		return nil, fmt.Errorf("hass: subscribing to birth topic: %w", err)
	}
	return d, nil
}

// UniqueID returns the id derived from the device identifier.
func (d *Discovery) UniqueID() string { return d.uniqueID }

// Endpoint creates an endpoint publishing on name and subscribes to its
// command topic.
//
// Parameters:
//   - name: State topic, e.g. "FHCP2mqtt/inlet"
//   - publishAfterSet: Publish the state right after every command
func (d *Discovery) Endpoint(name string, publishAfterSet bool) (*Endpoint, error) {
	if name == "" {
		return nil, ErrInvalidEndpoint
	}

	d.mu.Lock()
	id := childID(d.nextID, 1)
	d.nextID++
	d.mu.Unlock()

	ep := &Endpoint{
		d:               d,
		id:              id,
		uniqueID:        uniqueID(id),
		name:            name,
		commandTopic:    mqtt.Topics{}.Command(name),
		publishAfterSet: publishAfterSet,
	}
	if err := d.pub.Subscribe(ep.commandTopic, stateQoS, ep.handleCommand); err != nil {
		return nil, fmt.Errorf("hass: subscribing to %s: %w", ep.commandTopic, err)
	}

	d.mu.Lock()
	d.endpoints = append(d.endpoints, ep)
	d.mu.Unlock()
	return ep, nil
}

// Endpoints returns the registered endpoints in creation order, the
// controller endpoint first.
func (d *Discovery) Endpoints() []*Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Endpoint, len(d.endpoints))
	copy(out, d.endpoints)
	return out
}

// PublishAll publishes the state of every endpoint. Failures are joined;
// one failing endpoint does not stop the others.
func (d *Discovery) PublishAll() error {
	var errs []error
	for _, ep := range d.Endpoints() {
		if err := ep.Publish(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Announce publishes the discovery config of every registered attribute
// again.
func (d *Discovery) Announce() error {
	var errs []error
	for _, ep := range d.Endpoints() {
		for _, a := range ep.attributes() {
			if err := d.publishConfig(ep, a); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Available reports whether the controller announces itself as available.
func (d *Discovery) Available() bool { return d.available.Load() }

// Close marks the controller unavailable, publishes that state and drops
// the birth and command subscriptions so a reconnecting client does not
// restore them.
func (d *Discovery) Close() error {
	d.available.Store(false)
	errs := []error{d.controller.Publish()}

	topics := []string{d.prefix + "/status"}
	for _, ep := range d.Endpoints() {
		topics = append(topics, ep.commandTopic)
	}
	for _, topic := range topics {
		if err := d.pub.Unsubscribe(topic); err != nil {
			errs = append(errs, fmt.Errorf("hass: unsubscribing from %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// SetObserver replaces the command observer.
func (d *Discovery) SetObserver(obs CommandObserver) {
	d.observerMu.Lock()
	d.observer = obs
	d.observerMu.Unlock()
}

func (d *Discovery) notify(cmd Command) {
	d.observerMu.RLock()
	obs := d.observer
	d.observerMu.RUnlock()
	if obs != nil {
		obs(cmd)
	}
	if cmd.Err != nil {
		d.logger.Warn("hass command failed",
			"endpoint", cmd.Endpoint,
			"attribute", cmd.Attribute,
			"error", cmd.Err,
		)
		return
	}
	d.logger.Debug("hass command applied",
		"endpoint", cmd.Endpoint,
		"attribute", cmd.Attribute,
	)
}

// configPayload is the full discovery config of one attribute.
func (d *Discovery) configPayload(ep *Endpoint, a registered) ([]byte, error) {
	cfg := a.config(ep, a.uniqueID)
	cfg["device"] = d.device
	cfg["origin"] = d.origin
	cfg["availability"] = d.availability
	return json.Marshal(cfg)
}

func (d *Discovery) publishConfig(ep *Endpoint, a registered) error {
	payload, err := d.configPayload(ep, a)
	if err != nil {
		return fmt.Errorf("hass: encoding config of %s/%s: %w", ep.name, a.Name, err)
	}
	topic := mqtt.Topics{}.DiscoveryConfig(d.prefix, string(a.Component), ep.uniqueID, a.Name)
	if err := d.pub.PublishRetained(topic, payload); err != nil {
		return fmt.Errorf("hass: announcing %s/%s: %w", ep.name, a.Name, err)
	}
	return nil
}

// handleBirth re-announces everything when Home Assistant comes online.
func (d *Discovery) handleBirth(_ string, payload []byte) error {
	if string(payload) != birthPayload {
		return nil
	}
	d.logger.Debug("home assistant online, announcing")
	return errors.Join(d.Announce(), d.PublishAll())
}
