// Package timeouts defines shared timeout constants used across the service.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// IdentityCall caps a single round trip to the identity directory.
const IdentityCall = 10 * time.Second

// SQLiteBusy is the busy timeout handed to SQLite so concurrent writers wait
// on the database lock instead of failing immediately.
const SQLiteBusy = 5 * time.Second
