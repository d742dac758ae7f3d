// Package log provides structured logging for all doghair components.
//
// It wraps zerolog with a global logger initialized once at process start
// and child-logger helpers that attach the standard doghair fields
// (component, node, pull_cycle) so log lines from the coordinator, the
// collectors, and the transfer tasks correlate cleanly.
package log
