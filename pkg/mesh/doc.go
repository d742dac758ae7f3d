// Package mesh connects doghair to the cluster mesh service.
//
// The mesh service (out of scope for doghair itself) publishes a
// fully-connected flag and hosts the collector node registry in etcd.
// The coordinator probes the flag before any remote work and reads the
// peer set from the registry; collectors register their control address
// under a lease so a dead node ages out on its own.
package mesh
