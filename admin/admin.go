// Package admin exposes operator-only maintenance operations that must not
// be reachable from the normal write/read path: retention purges and
// outbox-row requeuing.
package admin

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkirchner/evstore/outbox"
)

// Purger deletes committed events and their snapshots older than a cutoff.
// It is the escape hatch spec.md's data model calls out ("never deleted
// except by admin retention") — there is deliberately no path to it from
// EventStore, Repository, or the projection engine.
type Purger interface {
	// Purge deletes events (and any snapshot made obsolete by the
	// deletion) committed strictly before cutoff, optionally scoped to a
	// single tenant. It returns the number of events removed.
	Purge(ctx context.Context, cutoff time.Time, tenantID string) (int64, error)
}

// Admin wraps a Purger and an outbox.Store with logging, for operator
// tooling (a CLI or an internal admin endpoint, both out of scope here).
type Admin struct {
	purger Purger
	outbox outbox.Store
	log    *zap.Logger
}

// New creates an Admin. log may be nil.
func New(purger Purger, outboxStore outbox.Store, log *zap.Logger) *Admin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Admin{purger: purger, outbox: outboxStore, log: log}
}

// Purge deletes events older than cutoff, scoped to tenantID (empty means
// all tenants), and logs the outcome.
func (a *Admin) Purge(ctx context.Context, cutoff time.Time, tenantID string) (int64, error) {
	n, err := a.purger.Purge(ctx, cutoff, tenantID)
	if err != nil {
		return 0, fmt.Errorf("ges-admin: purge failed: %w", err)
	}
	a.log.Info("admin purge completed", zap.Time("cutoff", cutoff), zap.String("tenant_id", tenantID), zap.Int64("events_removed", n))
	return n, nil
}

// RequeueFailed resets a FAILED outbox row back to PENDING, the
// operator-facing unstick path for rows that exhausted their retry
// ceiling.
func (a *Admin) RequeueFailed(ctx context.Context, outboxID string) error {
	if err := a.outbox.Requeue(ctx, outboxID); err != nil {
		return fmt.Errorf("ges-admin: requeue failed: %w", err)
	}
	a.log.Info("admin requeued outbox row", zap.String("outbox_id", outboxID))
	return nil
}
