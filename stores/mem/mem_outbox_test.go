package mem_test

import (
	"testing"

	"github.com/mkirchner/evstore/internal/outboxtest"
	"github.com/mkirchner/evstore/outbox"
	"github.com/mkirchner/evstore/stores/mem"
)

func TestOutbox_Compliance(t *testing.T) {
	outboxtest.Run(t, func(t *testing.T) (outbox.Store, outboxtest.Seed) {
		store := mem.New()
		ob := mem.NewOutboxStore(store)
		return ob, func(t *testing.T, n int) []string { return ob.SeedForTest(n) }
	})
}
