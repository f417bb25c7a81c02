package mem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/outbox"
)

type outboxRow struct {
	entry   outbox.Entry
	claimed bool
}

// outboxInsertLocked records a PENDING outbox row. Callers must hold s.mu.
func (s *Store) outboxInsertLocked(eventID, aggregateID, eventType string, payload []byte, md ges.Metadata) {
	if s.outboxRows == nil {
		s.outboxRows = make(map[string]*outboxRow)
	}
	id := uuid.NewString()
	s.outboxRows[id] = &outboxRow{entry: outbox.Entry{
		OutboxID:    id,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     payload,
		Metadata:    md,
		Status:      outbox.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}}
}

// Outbox is an in-memory outbox.Store sharing the Store's lock and row
// set, so rows inserted by Append are immediately visible to it.
type Outbox struct {
	store *Store
}

// NewOutboxStore creates an in-memory outbox.Store backed by s.
func NewOutboxStore(s *Store) *Outbox {
	return &Outbox{store: s}
}

// SeedForTest inserts n PENDING rows directly, bypassing Append, for
// outboxtest's compliance suite. Not meant for production callers.
func (o *Outbox) SeedForTest(n int) []string {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		if s.outboxRows == nil {
			s.outboxRows = make(map[string]*outboxRow)
		}
		s.outboxRows[id] = &outboxRow{entry: outbox.Entry{
			OutboxID:  id,
			EventType: "Thing",
			Status:    outbox.StatusPending,
			CreatedAt: time.Now().UTC(),
		}}
		ids[i] = id
	}
	return ids
}

func (o *Outbox) ClaimBatch(_ context.Context, limit int) ([]outbox.Entry, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*outboxRow
	for _, row := range s.outboxRows {
		if row.entry.Status == outbox.StatusPending && !row.claimed {
			pending = append(pending, row)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].entry.CreatedAt.Equal(pending[j].entry.CreatedAt) {
			return pending[i].entry.OutboxID < pending[j].entry.OutboxID
		}
		return pending[i].entry.CreatedAt.Before(pending[j].entry.CreatedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]outbox.Entry, 0, len(pending))
	for _, row := range pending {
		row.claimed = true
		out = append(out, row.entry)
	}
	return out, nil
}

func (o *Outbox) MarkProcessed(_ context.Context, outboxID string, processedAt time.Time) error {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outboxRows[outboxID]
	if !ok {
		return fmt.Errorf("ges-mem: no outbox row %s", outboxID)
	}
	row.entry.Status = outbox.StatusProcessed
	t := processedAt
	row.entry.ProcessedAt = &t
	return nil
}

func (o *Outbox) MarkAttemptFailed(_ context.Context, outboxID string, maxAttempts int) (outbox.Status, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outboxRows[outboxID]
	if !ok {
		return "", fmt.Errorf("ges-mem: no outbox row %s", outboxID)
	}
	row.entry.AttemptCount++
	row.claimed = false
	if row.entry.AttemptCount >= maxAttempts {
		row.entry.Status = outbox.StatusFailed
	}
	return row.entry.Status, nil
}

func (o *Outbox) Requeue(_ context.Context, outboxID string) error {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outboxRows[outboxID]
	if !ok {
		return fmt.Errorf("ges-mem: no outbox row %s", outboxID)
	}
	if row.entry.Status != outbox.StatusFailed {
		return fmt.Errorf("ges-mem: outbox row %s is not in FAILED state", outboxID)
	}
	row.entry.Status = outbox.StatusPending
	row.entry.AttemptCount = 0
	row.entry.ProcessedAt = nil
	row.claimed = false
	return nil
}

var _ outbox.Store = (*Outbox)(nil)
