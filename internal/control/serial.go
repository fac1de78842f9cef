package control

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

const (
	// lcusHeader starts every LCUS relay frame.
	lcusHeader byte = 0xA0

	// defaultBaudRate is the factory setting of LCUS boards.
	defaultBaudRate = 9600
)

// SerialRelay drives an LCUS-type USB relay board. The board does not
// report its state, so the driver keeps the last state it wrote.
//
// Frames are four bytes: 0xA0, the 1-based channel, 0x00/0x01 for off/on
// and the low byte of the sum of the first three.
type SerialRelay struct {
	mu     sync.Mutex
	port   io.WriteCloser
	state  []bool
	closed bool
}

// OpenSerialRelay opens the serial port of an LCUS board.
//
// Parameters:
//   - name: Serial device, e.g. "/dev/ttyUSB0"
//   - baudRate: Port speed; 0 selects 9600
//   - channels: Number of channels to drive
func OpenSerialRelay(name string, baudRate, channels int) (*SerialRelay, error) {
	if baudRate <= 0 {
		baudRate = defaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening relay port %s: %w", name, err)
	}
	return NewSerialRelay(port, channels), nil
}

// NewSerialRelay drives a board over an already open port.
func NewSerialRelay(port io.WriteCloser, channels int) *SerialRelay {
	if channels < 1 {
		channels = 1
	}
	return &SerialRelay{port: port, state: make([]bool, channels)}
}

// lcusFrame encodes one switching command. ch is 0-based.
func lcusFrame(ch int, on bool) []byte {
	num := byte(ch + 1)
	var st byte
	if on {
		st = 1
	}
	return []byte{lcusHeader, num, st, lcusHeader + num + st}
}

// Channels returns the number of channels.
func (r *SerialRelay) Channels() int { return len(r.state) }

// Set switches one channel.
func (r *SerialRelay) Set(ch int, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(ch, on)
}

func (r *SerialRelay) set(ch int, on bool) error {
	if r.closed {
		return ErrRelayClosed
	}
	if ch < 0 || ch >= len(r.state) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	if _, err := r.port.Write(lcusFrame(ch, on)); err != nil {
		return fmt.Errorf("switching relay %d: %w", ch, err)
	}
	r.state[ch] = on
	return nil
}

// State returns the last state written to a channel.
func (r *SerialRelay) State(ch int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch < 0 || ch >= len(r.state) {
		return false, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return r.state[ch], nil
}

// AllOff switches every channel off, one frame per channel.
func (r *SerialRelay) AllOff() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.state {
		if err := r.set(ch, false); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the serial port.
func (r *SerialRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.port.Close()
}
