// Package daemon coordinates the long-running curator process: it enforces
// single-instance execution with a lock file, runs the scheduler, and serves
// the HTTP API including the server-sent event stream.
package daemon
