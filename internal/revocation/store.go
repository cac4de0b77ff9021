// Package revocation keeps the single live refresh token of every subject.
//
// An entry is present only while the subject has a session; logout deletes
// it and every login or refresh overwrites it. Entries expire on their own
// after the TTL given to Put and an expired entry is never returned again.
package revocation

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("revocation: entry not found")

type Store interface {
	// Put replaces any previous entry for subject.
	Put(ctx context.Context, subject, value string, ttl time.Duration) error
	// Get returns ErrNotFound when the entry is missing or expired.
	Get(ctx context.Context, subject string) (string, error)
	// Delete is a no-op for a missing subject.
	Delete(ctx context.Context, subject string) error
}
