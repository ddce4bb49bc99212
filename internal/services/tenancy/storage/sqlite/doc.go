// Package sqlite provides the SQLite-backed tenancy store.
//
// The users table's unique email is the only serialization point between
// concurrent invitation acceptances; callers rely on storage.ErrConflict from
// CreateUser to detect a lost race.
package sqlite
