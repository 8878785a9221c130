// Package creds stores per-user archive credentials encrypted at rest.
//
// Credentials are sealed with ChaCha20-Poly1305 using a key kept in a
// separate file. Decryption happens only when an adapter call needs the
// credential; nothing in the daemon holds plaintext credentials between
// calls.
package creds
