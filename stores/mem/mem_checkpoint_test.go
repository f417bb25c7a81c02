package mem_test

import (
	"testing"

	"github.com/mkirchner/evstore/internal/projectiontest"
	"github.com/mkirchner/evstore/projection"
	"github.com/mkirchner/evstore/stores/mem"
)

func TestCheckpointStore_Compliance(t *testing.T) {
	projectiontest.Run(t, func(t *testing.T) projection.CheckpointStore {
		return mem.NewCheckpointStore()
	})
}
