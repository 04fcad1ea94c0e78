package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemory_Aggregates(t *testing.T) {
	c := NewInMemory()
	c.Record(Event{Name: EventValuation, Duration: 10 * time.Millisecond})
	c.Record(Event{Name: EventValuation, Duration: 30 * time.Millisecond})
	c.Record(Event{Name: EventLotFetchFailure, Count: 3})

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Count(EventValuation))
	assert.Equal(t, 20*time.Millisecond, snap.Stats[EventValuation].AverageDuration())
	assert.Equal(t, 30*time.Millisecond, snap.Stats[EventValuation].MaxDuration)
	assert.Equal(t, int64(3), snap.Count(EventLotFetchFailure))
	assert.Zero(t, snap.Count(EventTransferReceived))
}

func TestInMemory_IsolatedAndConcurrent(t *testing.T) {
	a, b := NewInMemory(), NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Record(Event{Name: EventMovementAppended})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), a.Snapshot().Count(EventMovementAppended))
	assert.Zero(t, b.Snapshot().Count(EventMovementAppended))
}

func TestSnapshot_IsCopy(t *testing.T) {
	c := NewInMemory()
	c.Record(Event{Name: EventReconciliation})
	snap := c.Snapshot()
	c.Record(Event{Name: EventReconciliation})

	assert.Equal(t, int64(1), snap.Count(EventReconciliation))
	assert.Equal(t, int64(2), c.Snapshot().Count(EventReconciliation))
	assert.NotNil(t, OrNop(nil).Snapshot().Stats)
}
