package mem_test

import (
	"testing"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/internal/storetest"
	"github.com/mkirchner/evstore/stores/mem"
)

func TestStore_Compliance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) ges.EventStore {
		t.Helper()
		return mem.New(mem.WithRegistry(storetest.Registry()))
	})
}
