// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
// The CLI talks to the running daemon through this surface.
package ipc
