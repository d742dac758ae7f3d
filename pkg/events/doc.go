// Package events distributes coordinator lifecycle and pull-cycle
// events to in-process subscribers.
//
// Events are typed records of what the state core just did: which
// collector booted, died, or was reborn, and which pull cycle gained a
// file or completed. Publish fans out synchronously from the state
// core's goroutine into per-subscriber buffers, dropping on a full
// buffer so a stalled subscriber can never block the core.
package events
