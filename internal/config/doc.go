// Package config provides centralized configuration management for the
// CoSign-Relay daemon. It loads a single YAML document describing the API
// server, flow parameters, relay backends, chain providers, wallet keystore
// and logging, applying sensible defaults for fields the operator omits.
package config
