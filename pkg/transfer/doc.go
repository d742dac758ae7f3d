// Package transfer implements the per-file TCP handoff of the pull
// protocol.
//
// For every announced sample file the coordinator opens a fresh
// ephemeral-port listener, accepting exactly one connection, and only
// then tells the collector where to connect. The collector streams raw
// bytes and closes the socket; a clean close completes the file, any
// error abandons it without affecting other transfers.
package transfer
