// Package dedup decides, per produced file, whether to create a new archive
// item or merge into an existing one.
//
// Identity is a stable content fingerprint. A fingerprint match merges: tag
// union, safety reconciled to the more restrictive rating unless the caller
// overrode it, and bidirectional relations across the whole file group.
// Archive errors surface as upload errors and are never mistaken for "no
// match found".
package dedup
