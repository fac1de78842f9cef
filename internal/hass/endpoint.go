package hass

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Endpoint is one state topic with its attributes.
type Endpoint struct {
	d               *Discovery
	id              uint32
	uniqueID        string
	name            string
	commandTopic    string
	publishAfterSet bool

	mu      sync.RWMutex
	attrs   []registered
	ordinal uint32
}

// registered is an attribute bound to an endpoint.
type registered struct {
	Attribute
	uniqueID string
}

// Name returns the endpoint's state topic.
func (e *Endpoint) Name() string { return e.name }

// UniqueID returns the object id announced for the endpoint's entities.
func (e *Endpoint) UniqueID() string { return e.uniqueID }

// CommandTopic returns the topic the endpoint accepts commands on.
func (e *Endpoint) CommandTopic() string { return e.commandTopic }

// Add registers attributes and announces each of them to Home Assistant.
//
// Attributes are announced in order; the first failure stops the call and
// leaves the attributes before it registered.
//
// Returns:
//   - error: ErrInvalidAttribute, ErrDuplicateAttribute or a publish error
func (e *Endpoint) Add(attrs ...Attribute) error {
	for _, a := range attrs {
		if err := a.validate(); err != nil {
			return err
		}

		e.mu.Lock()
		for _, existing := range e.attrs {
			if existing.Name == a.Name {
				e.mu.Unlock()
				return fmt.Errorf("%w: %s on %s", ErrDuplicateAttribute, a.Name, e.name)
			}
		}
		e.ordinal++
		r := registered{Attribute: a, uniqueID: uniqueID(childID(e.id, e.ordinal))}
		e.attrs = append(e.attrs, r)
		e.mu.Unlock()

		if err := e.d.publishConfig(e, r); err != nil {
			return err
		}
	}
	return nil
}

// attributes returns a snapshot of the registered attributes.
func (e *Endpoint) attributes() []registered {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]registered, len(e.attrs))
	copy(out, e.attrs)
	return out
}

// State collects the value of every readable attribute. Attributes whose
// getter fails are left out and their errors joined into the result.
func (e *Endpoint) State() (map[string]any, error) {
	state := make(map[string]any)
	var errs []error
	for _, a := range e.attributes() {
		if a.Get == nil {
			continue
		}
		v, err := a.Get()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", e.name, a.Name, err))
			continue
		}
		state[a.Name] = v
	}
	return state, errors.Join(errs...)
}

// Publish sends the endpoint state as one JSON object, not retained.
func (e *Endpoint) Publish() error {
	state, stateErr := e.State()
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Join(stateErr, fmt.Errorf("hass: encoding %s state: %w", e.name, err))
	}
	if err := e.d.pub.Publish(e.name, payload, stateQoS, false); err != nil {
		return errors.Join(stateErr, err)
	}
	return stateErr
}

// handleCommand applies a command object received on the command topic.
func (e *Endpoint) handleCommand(topic string, payload []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
	}

	var errs []error
	for _, a := range e.attributes() {
		raw, ok := fields[a.Name]
		if !ok || a.Set == nil {
			continue
		}
		err := a.Set(raw)
		e.d.notify(Command{Endpoint: e.name, Attribute: a.Name, Value: raw, Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", e.name, a.Name, err))
		}
	}

	if e.publishAfterSet {
		if err := e.Publish(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
