package syncer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/searchsync/internal/catalog"
)

func TestGuardAcquireRelease(t *testing.T) {
	g := NewGuard()

	require.True(t, g.TryAcquire(catalog.KindProducts))
	assert.True(t, g.Held(catalog.KindProducts))
	assert.False(t, g.TryAcquire(catalog.KindProducts))

	g.Release(catalog.KindProducts)
	assert.False(t, g.Held(catalog.KindProducts))
	assert.True(t, g.TryAcquire(catalog.KindProducts))
}

func TestGuardKindsAreIndependent(t *testing.T) {
	g := NewGuard()

	require.True(t, g.TryAcquire(catalog.KindProducts))
	assert.True(t, g.TryAcquire(catalog.KindCustomers))
	assert.True(t, g.TryAcquire(catalog.KindInventory))
	assert.False(t, g.TryAcquire(catalog.KindProducts))
}

func TestGuardReleaseUnheldIsNoop(t *testing.T) {
	g := NewGuard()
	g.Release(catalog.KindProducts)
	assert.True(t, g.TryAcquire(catalog.KindProducts))
}

func TestGuardSingleWinnerUnderContention(t *testing.T) {
	g := NewGuard()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(catalog.KindProducts) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}
