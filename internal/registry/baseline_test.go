package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/hardware"
)

func TestSingleLockStore_MatchesRegistry(t *testing.T) {
	facts := []hardware.DriveFacts{nvme("d1", 100*gib), hdd("d2", 1000*gib)}
	r, _, _ := newTestRegistry()
	s := NewSingleLockStore()

	for _, store := range []NodeStore{r, s} {
		gen, err := store.Ingest("node-1", facts)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), gen)

		gen, err = store.UpdateMetrics("node-1", "d1", hardware.DriveMetrics{IOPS: 1})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), gen)
		_, err = store.UpdateMetrics("node-1", "zz", hardware.DriveMetrics{})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.UpdateMetrics("ghost", "d1", hardware.DriveMetrics{})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 0)})
		assert.ErrorIs(t, err, ErrInvalidFacts)
	}

	a, _ := r.Get("node-1")
	b, _ := s.Get("node-1")
	assert.Equal(t, a.Generation, b.Generation)
	for id := range a.Drives {
		assert.Equal(t, a.Drives[id].Classification, b.Drives[id].Classification)
	}

	_, ok := s.Get("ghost")
	assert.False(t, ok)
}
