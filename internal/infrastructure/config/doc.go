// Package config handles loading and validating supermqtt configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SUPERMQTT_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Broker.Host)
package config
