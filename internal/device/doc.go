// Package device holds the in-memory state of the floor heating controller.
//
// Status packs the control mode, both setpoints and the per-channel
// temperatures and valve flags into four 32-bit words updated with atomic
// compare-and-swap, so the HTTP workers, the control loop and the MQTT
// bridge can read and write it without a lock. Only the four message lines
// sit behind a mutex.
//
// # Channels
//
// Channel 0 is the inlet valve and its supply temperature; channels 1..7 are
// zones. Each channel has:
//
//   - a requested state (ZoneOpen, InletOpen for channel 0)
//   - the relay feedback written back by the control loop (IsZoneOpen)
//   - a temperature in tenths of a degree, 0.0 to 51.1 °C
//
// # Usage
//
//	status := device.NewStatus()
//	status.SetMode(device.Automatic)
//	status.SetTargetTemperature(32.5)
//	status.SetTargetTemperatureRange(1.5)
//
//	t0, _ := status.Temperature(0)
//
// State is not persisted; a restart comes up in manual mode with all
// valves closed.
package device
