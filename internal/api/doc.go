// Package api exposes job operations in transport-friendly form: DTO types,
// the job service shared by HTTP and IPC surfaces, and pre-submission URL
// validation.
package api
