package mem

import (
	"context"
	"time"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/admin"
)

// Purger is an in-memory admin.Purger over s.
type Purger struct {
	store *Store
}

// NewPurger creates an in-memory Purger backed by s.
func NewPurger(s *Store) *Purger {
	return &Purger{store: s}
}

// Purge removes events created strictly before cutoff (scoped to tenantID
// when non-empty) from the store's streams and global log. Snapshots, which
// live in a separate SnapshotStore, and outbox rows are not touched.
func (p *Purger) Purge(_ context.Context, cutoff time.Time, tenantID string) (int64, error) {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, seq := range s.byStream {
		var kept []ges.EventEnvelope
		for _, env := range seq {
			if env.CreatedAt.Before(cutoff) && (tenantID == "" || env.TenantID == tenantID) {
				removed++
				continue
			}
			kept = append(kept, env)
		}
		s.byStream[key] = kept
	}

	var keptGlobal []ges.EventEnvelope
	for _, env := range s.global {
		if env.CreatedAt.Before(cutoff) && (tenantID == "" || env.TenantID == tenantID) {
			continue
		}
		keptGlobal = append(keptGlobal, env)
	}
	s.global = keptGlobal

	return removed, nil
}

var _ admin.Purger = (*Purger)(nil)
