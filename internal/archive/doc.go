// Package archive talks to the content archive: fingerprint lookups, item
// creation, tag/safety updates, and item relations.
//
// Every call resolves the job owner's credential from the encrypted store at
// invocation time. Archive failures are upload errors; a failed lookup is
// never treated as "no match found".
package archive
