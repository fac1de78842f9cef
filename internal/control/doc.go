// Package control runs the periodic control loop of the floor heating
// controller.
//
// Every tick the loop:
//
//  1. reads the configured temperature sensors concurrently into the
//     device status (channel 0 is the inlet probe),
//  2. in automatic mode closes the inlet when the inlet temperature rises
//     above target + range and opens it when it falls below target - range;
//     inside that band nothing changes,
//  3. in manual mode drives the inlet relay from the InletOpen flag,
//  4. drives zone relays 1..n from the ZoneOpen flags,
//  5. writes the relay states back as IsInletOpen / IsZoneOpen feedback,
//  6. hands a status snapshot to every tick observer (MQTT state, telemetry).
//
// All relays are switched off when the loop starts and again when it stops.
//
// Drivers:
//   - MemoryRelay keeps relay state in memory (development, tests).
//   - SerialRelay drives an LCUS-type USB relay board over a serial port.
//   - W1Sensor reads a DS18B20 probe through the Linux 1-Wire sysfs driver.
package control
