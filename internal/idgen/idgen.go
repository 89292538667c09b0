// Package idgen hands out the opaque identifiers used for sessions, images,
// clusters, and job IDs.
package idgen

import "github.com/google/uuid"

// New returns a fresh opaque identifier.
func New() string {
	return uuid.NewString()
}

// Token returns a fresh bearer token, generated the same way as any other
// identifier — it only needs to be unguessable and unique, not structured.
func Token() string {
	return uuid.NewString()
}
