// Package influxdb writes controller telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written, all tagged with the device name:
//
//	floorheat_inlet  mode, inlet temperature, set point, band, relay state
//	floorheat_zone   per zone (tag "zone"): temperature, requested and actual state
//	floorheat_stats  per component (tag "component"): loop and dispatcher counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteZone("FHCP2mqtt", influxdb.ZoneSample{Zone: 1, Temperature: 21.5}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; asynchronous write
// failures are delivered to the SetOnError callback.
package influxdb
