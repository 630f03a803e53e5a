package domain

import (
	"context"
	"io"
	"time"
)

// AuditLog is the append-only record of closed opportunities.
type AuditLog interface {
	// Append adds a closed record and persists the full log.
	Append(rec ClosedOpportunity) error
}

// AuditSnapshotter exposes the current audit contents for archiving.
type AuditSnapshotter interface {
	// Snapshot returns a copy of every closed record logged so far.
	Snapshot() []ClosedOpportunity
}

// OpportunityStore persists closed-opportunity history.
type OpportunityStore interface {
	InsertClosed(ctx context.Context, rec ClosedOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ClosedOpportunity, error)
}

// OddsCache holds the latest normalized quote per game and venue so
// external consumers (dashboards, the console monitor) can read engine
// state without touching the engine.
type OddsCache interface {
	SetVenueOdds(ctx context.Context, gameID string, venue Venue, state VenueOddsState) error
	GetVenueOdds(ctx context.Context, gameID string, venue Venue) (VenueOddsState, error)
}

// SignalBus carries opportunity lifecycle events to out-of-process
// consumers. The display sink subscribes to the "arbs" channel.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads a payload to object storage under the given key.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// LockManager provides distributed mutual exclusion, used to keep two
// instances from writing the same history.
type LockManager interface {
	// Acquire obtains the named lock or returns ErrLockHeld. The
	// returned function releases it and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls against shared upstream quotas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
