// Package protocol implements the doghair control protocol wire format:
// framed binary messages on a persistent TCP connection per collector.
//
// The package is organized around the control data flow:
//
//   - protocol.go: frame types and the framed read/write primitives
//   - codec.go: the CBOR payload codec (deterministic encoding)
//   - payloads.go: the payload structs for every frame type
//   - conn.go: a connection wrapper with serialized frame writes
//
// A frame is a 5-byte header (1 byte type + 4 byte big-endian payload
// length) followed by a CBOR payload. The coordinator holds one
// long-lived connection per collector; loss of that connection is the
// collector's death notification.
package protocol
