// Package client wraps the coordinator's admin protocol for the
// doghair CLI.
//
// Operator commands are fire-and-forget: the ack only confirms the
// command reached the coordinator's queue. Guard failures (a redundant
// start_collect, a pull during collection) are visible in the
// coordinator's log, not here.
package client
