package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkirchner/evstore/admin"
	"github.com/mkirchner/evstore/outbox"
	"github.com/mkirchner/evstore/stores/mem"
)

type fakePurger struct {
	calledCutoff time.Time
	calledTenant string
	removed      int64
}

func (f *fakePurger) Purge(_ context.Context, cutoff time.Time, tenantID string) (int64, error) {
	f.calledCutoff = cutoff
	f.calledTenant = tenantID
	return f.removed, nil
}

func TestAdmin_PurgeDelegatesToPurger(t *testing.T) {
	purger := &fakePurger{removed: 12}
	store := mem.New()
	a := admin.New(purger, mem.NewOutboxStore(store), nil)

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := a.Purge(context.Background(), cutoff, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, cutoff, purger.calledCutoff)
	assert.Equal(t, "tenant-a", purger.calledTenant)
}

func TestAdmin_RequeueFailedResetsRow(t *testing.T) {
	store := mem.New()
	ob := mem.NewOutboxStore(store)
	ids := ob.SeedForTest(1)

	_, err := ob.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)
	_, err = ob.MarkAttemptFailed(context.Background(), ids[0], 1)
	require.NoError(t, err)

	a := admin.New(&fakePurger{}, ob, nil)
	require.NoError(t, a.RequeueFailed(context.Background(), ids[0]))

	claimed, err := ob.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, outbox.StatusPending, claimed[0].Status)
}

func TestAdmin_RequeueUnknownRowErrors(t *testing.T) {
	store := mem.New()
	ob := mem.NewOutboxStore(store)
	a := admin.New(&fakePurger{}, ob, nil)
	err := a.RequeueFailed(context.Background(), "nope")
	assert.Error(t, err)
}
