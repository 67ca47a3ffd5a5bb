// Package config loads brokerfleet settings with viper: built-in defaults,
// then an optional YAML file, then BROKERFLEET_* environment variables
// (dots become underscores, so broker.port is BROKERFLEET_BROKER_PORT).
package config
