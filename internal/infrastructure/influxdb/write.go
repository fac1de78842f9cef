package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementInlet = "floorheat_inlet"
	MeasurementZone  = "floorheat_zone"
	MeasurementStats = "floorheat_stats"
)

// InletSample is the inlet state at one instant.
type InletSample struct {
	Automatic              bool
	Temperature            float64
	TargetTemperature      float64
	TargetTemperatureRange float64
	Open                   bool
	IsOpen                 bool
}

// ZoneSample is one zone's state at one instant. Zone 0 is the inlet and is
// written through WriteInlet instead.
type ZoneSample struct {
	Zone        int
	Temperature float64
	Open        bool
	IsOpen      bool
}

// WriteInlet writes the inlet point of a device.
func (c *Client) WriteInlet(deviceName string, s InletSample, at time.Time) {
	c.writePoint(MeasurementInlet,
		map[string]string{"device": deviceName},
		map[string]any{
			"automatic":                s.Automatic,
			"temperature":              s.Temperature,
			"target_temperature":       s.TargetTemperature,
			"target_temperature_range": s.TargetTemperatureRange,
			"open":                     s.Open,
			"is_open":                  s.IsOpen,
		},
		at)
}

// WriteZone writes one zone point. The zone number is a tag so queries can
// group by zone.
func (c *Client) WriteZone(deviceName string, s ZoneSample, at time.Time) {
	c.writePoint(MeasurementZone,
		map[string]string{
			"device": deviceName,
			"zone":   strconv.Itoa(s.Zone),
		},
		map[string]any{
			"temperature": s.Temperature,
			"open":        s.Open,
			"is_open":     s.IsOpen,
		},
		at)
}

// WriteStats writes counters of one component, such as the control loop or
// the request dispatcher.
//
// Example:
//
//	client.WriteStats("FHCP2mqtt", "control", map[string]any{"ticks": 120}, time.Now())
func (c *Client) WriteStats(deviceName, component string, counters map[string]any, at time.Time) {
	if len(counters) == 0 {
		return
	}
	c.writePoint(MeasurementStats,
		map[string]string{
			"device":    deviceName,
			"component": component,
		},
		counters,
		at)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || c.writeAPI == nil {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
