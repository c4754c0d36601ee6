package tsunami

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsRecordAccepted(t *testing.T) {
	s := NewStats(75)
	s.RecordAccepted(3)
	assert.EqualValues(t, 3, s.TotalBlocks)
	assert.EqualValues(t, 1, s.ThisBlocks)

	s.RecordAccepted(4)
	assert.EqualValues(t, 4, s.TotalBlocks)
	assert.EqualValues(t, 2, s.ThisBlocks)
}

func TestStatsResetTo(t *testing.T) {
	s := NewStats(75)
	s.RecordAccepted(10)
	s.ResetTo(3)
	assert.EqualValues(t, 3, s.TotalBlocks)
	assert.EqualValues(t, 3, s.ThisBlocks)
}

func TestStatsErrorRateEWMA(t *testing.T) {
	s := NewStats(0) // H=0: new sample fully replaces the estimate
	s.UpdateErrorRate(500)
	assert.EqualValues(t, 500, s.ErrorRate())

	s2 := NewStats(100) // H=100: sample has no effect
	s2.UpdateErrorRate(500)
	assert.EqualValues(t, 0, s2.ErrorRate())
}

func TestStatsShouldMaintain(t *testing.T) {
	s := NewStats(75)
	assert.True(t, s.ShouldMaintain(time.Now())) // no data accepted yet

	s.RecordAccepted(1)
	now := time.Now()
	assert.False(t, s.ShouldMaintain(now))
	assert.True(t, s.ShouldMaintain(now.Add(2*time.Second)))

	s.Tick(now)
	assert.False(t, s.ShouldMaintain(now.Add(500*time.Millisecond)))
}
