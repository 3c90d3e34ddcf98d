package model

import (
	"fmt"
	"time"
)

// Election is the slice of election metadata the credential issuer needs.
// It is owned by the external membership/election collaborator; ballotbox
// only reads it.
type Election struct {
	ID       string
	Question string
	Status   ElectionStatus
	StartsAt time.Time
	EndsAt   time.Time
}

// Validate checks the structural invariants of an election definition.
func (e Election) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("election id is required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("election %s: unknown status %q", e.ID, e.Status)
	}
	if !e.StartsAt.Before(e.EndsAt) {
		return fmt.Errorf("election %s: starts_at must be before ends_at", e.ID)
	}
	return nil
}

// IsOpen reports whether ballots may be cast at now. The voting window is
// half-open: [StartsAt, EndsAt).
func (e Election) IsOpen(now time.Time) bool {
	if e.Status != ElectionStatusPublished {
		return false
	}
	return !now.Before(e.StartsAt) && now.Before(e.EndsAt)
}

// IsClosed reports whether results may be released.
func (e Election) IsClosed() bool {
	return e.Status == ElectionStatusClosed
}
