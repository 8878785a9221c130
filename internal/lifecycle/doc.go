// Package lifecycle defines the job state machine and the single mutation
// path through which every status change flows.
//
// The transition table is pure logic with no storage or bus dependencies.
// Machine wraps the queue store and the event hub: it serializes mutations
// per job id, validates each edge against the table, persists the change,
// and emits exactly one bus event per successful transition. Control
// commands against leased jobs are recorded as pending commands and honored
// by the worker at its next phase boundary.
package lifecycle
