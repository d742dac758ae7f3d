// Package config loads doghair configuration from an optional YAML file
// overlaid with environment variables.
//
// The collector sampling configuration (interval, topn, smp) is special:
// InitConfig recomputes it from the environment on every call, matching
// the coordinator contract that the config is derived on demand and never
// stored.
package config
