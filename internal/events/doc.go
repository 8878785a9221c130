// Package events is the in-process bus that broadcasts job lifecycle
// activity to API subscribers.
//
// Publishing never blocks: each subscriber owns a bounded buffer and the
// oldest undelivered event is dropped when a slow consumer falls behind.
// Events carry monotonically increasing sequence numbers so consumers can
// detect gaps. A heartbeat ticker keeps idle SSE connections alive.
package events
