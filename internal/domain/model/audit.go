package model

import "time"

// AuditEntry is an observational record of an operation. Details must only
// contain hash prefixes and redacted identifiers.
type AuditEntry struct {
	ID        string
	Action    AuditAction
	Success   bool
	Details   map[string]any
	CreatedAt time.Time
}
