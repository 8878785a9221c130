// Package scheduler drives jobs through their pipeline phases.
//
// A dispatch loop keeps up to the configured number of workers busy, leasing
// the oldest pending jobs. Each worker runs download, optional tagging, and
// upload phases, checking for recorded pause/stop/delete commands at every
// phase boundary. Background loops re-admit failed jobs whose backoff delay
// expired and reclaim leases whose heartbeats went stale. In-flight adapter
// calls are not preemptible: a pause or stop takes effect at the next
// boundary, which may be up to one phase away.
package scheduler
