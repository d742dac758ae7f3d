/*
Package coordinator implements the doghair control plane: a single
state machine that supervises one collector worker per cluster node.

# Architecture

All coordinator state lives inside one goroutine, the state core, which
drains a single mailbox:

	operator commands ──┐
	peer replies ───────┤
	death notices ──────┼──▶ mailbox ──▶ state core ──▶ fan-out tasks
	timer continuations ┘

The core runs each message's guard/effect pair to completion before
touching the next; this serialization is the only concurrency-control
discipline the coordinator uses for its state. Anything that blocks on
network or disk (the mesh probe, peer dials, staggered sends, per-file
TCP receivers) runs as an ephemeral goroutine that posts its result
back into the mailbox.

# Lifecycle

Startup walks a deferred chain (init → check_meshed → distribute_code →
init_all) with short self-delays between steps so status queries
interleave with startup. An unmeshed cluster or a failed initial boot
is fatal; after that, the coordinator only shrinks: a collector whose
reboot fails or times out is dropped from the roster and the run
continues without it.

# Supervision

Each roster entry holds a persistent control connection and a UUID
monitor token minted at boot. A reader goroutine per connection posts
peer frames to the mailbox and synthesizes the death notification on
connection loss. Death notices are matched by token, so a notice from a
replaced incarnation can never evict its successor.
*/
package coordinator
