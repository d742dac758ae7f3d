// Package metrics exposes Prometheus metrics and component health for the
// doghair coordinator.
//
// Metrics cover the roster (collectors, collecting flag), supervision
// (rebirths, lost collectors), pull cycles (files, bytes, failures,
// duration), and operator commands. The health registry tracks
// per-component state: components registered as critical (the mesh
// probe, the state core, the pull ledger) gate the /ready endpoint,
// while /health reflects every reported failure. Both are served
// alongside /metrics and /live on the agent's metrics listener.
package metrics
