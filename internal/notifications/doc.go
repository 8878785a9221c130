// Package notifications pushes job outcomes to ntfy when a topic is
// configured. Without a topic every notification is a no-op.
package notifications
