// Package ledger is the skill-credential registry core: roles, courses,
// delegation grants, soulbound certificates and the notification log.
//
// A single Ledger owns all state. Mutations are serialized by one lock,
// persisted as one physical.Commit, applied in memory and only then
// published to subscribers, so a failed mutation leaves no trace and
// consumes no id.
package ledger

import "errors"

var (
	// ErrSubscriptionClosed indicates the ledger no longer accepts subscribers.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrNoAdmin indicates Options.Admin was not set.
	ErrNoAdmin = errors.New("ledger: admin account is required")
)
