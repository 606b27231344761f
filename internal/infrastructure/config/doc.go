// Package config handles loading and validating netmuxd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file into the environment
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables or the .env file, not the YAML file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	if err := config.LoadEnvFile(".env"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, t := range cfg.Targets {
//	    fmt.Println(t.Address)
//	}
package config
