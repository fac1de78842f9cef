// Package config handles loading and validating the floor heating controller
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FLOORHEAT_* environment variables
//   - Validation of every section, reporting all problems at once
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Name)
package config
