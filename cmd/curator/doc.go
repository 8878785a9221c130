// Command curator is the CLI for the curator daemon: it enqueues jobs,
// inspects the queue, applies control commands, and manages configuration
// and credentials.
package main
