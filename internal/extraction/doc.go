// Package extraction resolves a job's source URL into staged media files
// plus whatever tags and safety rating the source itself carries.
package extraction
