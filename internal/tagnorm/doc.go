// Package tagnorm canonicalizes tag strings so the same concept always
// produces the same tag, regardless of which source supplied it.
package tagnorm
