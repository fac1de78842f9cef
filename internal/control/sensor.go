package control

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Sensor reads one temperature in °C.
type Sensor interface {
	Temperature(ctx context.Context) (float32, error)
}

// SensorFunc adapts a function into a Sensor.
type SensorFunc func(ctx context.Context) (float32, error)

// Temperature calls f.
func (f SensorFunc) Temperature(ctx context.Context) (float32, error) { return f(ctx) }

// W1Sensor reads a DS18B20 probe through the w1_therm sysfs driver.
type W1Sensor struct {
	// ID is the 1-Wire device id, e.g. "28-00000034d56f".
	ID string

	// Path is the 1-Wire devices directory, usually /sys/bus/w1/devices.
	Path string
}

// W1Sensors builds one W1Sensor per id under path.
func W1Sensors(path string, ids []string) []Sensor {
	out := make([]Sensor, len(ids))
	for i, id := range ids {
		out[i] = &W1Sensor{ID: id, Path: path}
	}
	return out
}

// Temperature reads and parses w1_slave. The kernel performs the
// conversion during the read, which takes up to 750 ms per probe.
func (s *W1Sensor) Temperature(ctx context.Context) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(s.Path, s.ID, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("reading sensor %s: %w", s.ID, err)
	}
	t, err := parseW1Slave(data)
	if err != nil {
		return 0, fmt.Errorf("sensor %s: %w", s.ID, err)
	}
	return t, nil
}

// parseW1Slave parses the two-line w1_slave output:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(data []byte) (float32, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReading, data)
	}
	if !bytes.HasSuffix(bytes.TrimSpace(lines[0]), []byte("YES")) {
		return 0, ErrCRC
	}
	i := bytes.LastIndex(lines[1], []byte("t="))
	if i < 0 {
		return 0, fmt.Errorf("%w: no temperature in %q", ErrMalformedReading, lines[1])
	}
	milli, err := strconv.Atoi(string(bytes.TrimSpace(lines[1][i+2:])))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedReading, err)
	}
	return float32(milli) / 1000, nil
}
