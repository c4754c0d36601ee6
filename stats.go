package tsunami

import "time"

// UpdatePeriod is the minimum wall-clock interval between periodic
// maintenance ticks on the receiver (spec.md §4.3 step 7).
const UpdatePeriod = 1 * time.Second

// MaintenanceInterval is the iteration count between maintenance checks
// (spec.md §4.3 step 7: "every 50 iterations").
const MaintenanceInterval = 50

// Stats tracks the receiver's interval statistics and the error-rate EWMA
// fed back to the sender via ERROR_RATE control records (spec.md §4.2,
// §4.6, §10).
//
// Grounded on gocanopen's timeout/timer bookkeeping pattern in
// sdo_client_helpers.go, where a running counter is updated once per call
// cycle rather than on every byte — the same "update on tick, not on
// every event" shape, applied here to throughput/error-rate estimation.
type Stats struct {
	TotalBlocks uint32 // this_block of the most recently advanced ORIGINAL
	ThisBlocks  uint32 // +1 per accepted ORIGINAL; set to k by ResetTo; Tick leaves it unchanged

	historyWeight uint8 // H in [0,100]
	errorRateEWMA float64

	lastTick    time.Time
	lastAccepted bool
}

// NewStats creates a Stats tracker using the given EWMA history weight.
func NewStats(historyWeight uint8) *Stats {
	return &Stats{historyWeight: historyWeight, lastTick: time.Now()}
}

// ResetTo sets TotalBlocks and ThisBlocks to k, used when the retransmit
// table forces a RESTART-style cursor reset (spec.md §4.4).
func (s *Stats) ResetTo(k uint32) {
	s.TotalBlocks = k
	s.ThisBlocks = k
}

// RecordAccepted bumps TotalBlocks/ThisBlocks on acceptance of an ORIGINAL
// block (spec.md §4.3 step 5).
func (s *Stats) RecordAccepted(blockIndex uint32) {
	s.TotalBlocks = blockIndex
	s.ThisBlocks++
	s.lastAccepted = true
}

// UpdateErrorRate folds a fresh sample (parts per 100000, e.g. derived from
// ring-queue depth or observed gaps) into the running EWMA:
//
//	ewma = (H*ewma + (100-H)*sample) / 100
func (s *Stats) UpdateErrorRate(sample uint32) {
	h := float64(s.historyWeight)
	s.errorRateEWMA = (h*s.errorRateEWMA + (100-h)*float64(sample)) / 100
}

// ErrorRate returns the current EWMA error-rate estimate, parts per 100000.
func (s *Stats) ErrorRate() uint32 {
	return uint32(s.errorRateEWMA)
}

// ShouldMaintain reports whether maintenance is due: either no data has
// yet been accepted, or UpdatePeriod has elapsed since the last tick
// (spec.md §4.3 step 7).
func (s *Stats) ShouldMaintain(now time.Time) bool {
	return !s.lastAccepted || now.Sub(s.lastTick) > UpdatePeriod
}

// Tick records that maintenance ran at `now`.
func (s *Stats) Tick(now time.Time) {
	s.lastTick = now
}
