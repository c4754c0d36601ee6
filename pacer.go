package tsunami

import (
	"context"
	"math"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Pacer implements the sender's rate-paced inter-packet delay (spec.md
// §4.2, §4.5). ipdCurrent is always clamped to [ipdTime, ipdCeilingMicros]
// (invariant I5).
//
// Grounded on gocanopen's own use of golang.org/x/sys/unix (bus_manager.go
// imports it for CAN_SFF_MASK); repurposed here for a Nanosleep-based
// coarse sleep phase. golang.org/x/time/rate (the dependency style seen in
// diamondburned-arikawa's go.mod) backs a coarse secondary limiter so a
// misconfigured target rate cannot starve the control-channel reader
// between precise-sleep phases (SPEC_FULL §3).
type Pacer struct {
	ipdTime    uint32 // floor, microseconds
	ipdCurrent uint32 // current IPD, microseconds

	slowerNum, slowerDen uint16
	fasterNum, fasterDen uint16
	errorThreshold       uint32

	guard *rate.Limiter
}

// NewPacer creates a pacer for the given negotiated parameters.
// ipd_current is initialized to 3*ipd_time per spec.md §3.
func NewPacer(p Params) *Pacer {
	ipdTime := p.IPDTime()
	initial := clampIPD(3*ipdTime, ipdTime)
	// The coarse guard allows bursts up to one block's worth of bytes at
	// the target bit rate; it never fires under correct IPD pacing and
	// only engages as a brake if ipdCurrent degenerates toward its floor
	// faster than the guard's refill.
	burst := int(p.BlockSize)
	if burst < 1 {
		burst = 1
	}
	limiterRate := rate.Limit(float64(p.TargetRate) / 8)
	return &Pacer{
		ipdTime:        ipdTime,
		ipdCurrent:     initial,
		slowerNum:      p.SlowerNum,
		slowerDen:      p.SlowerDen,
		fasterNum:      p.FasterNum,
		fasterDen:      p.FasterDen,
		errorThreshold: p.ErrorRate,
		guard:          rate.NewLimiter(limiterRate, burst),
	}
}

func clampIPD(v, floor uint32) uint32 {
	if v < floor {
		return floor
	}
	if v > ipdCeilingMicros {
		return ipdCeilingMicros
	}
	return v
}

// IPDCurrent returns the current inter-packet delay in microseconds.
func (p *Pacer) IPDCurrent() uint32 { return p.ipdCurrent }

// OnErrorRate updates ipd_current from a receiver-reported error rate
// (parts per 100000), per spec.md §4.2 step 1 / §8 scenarios 3-4:
//
//	if e > E: ipd *= 1 + (slower_num/slower_den - 1) * (1+e-E) / (100000-E)
//	else:     ipd *= faster_num/faster_den
//
// The result is always clamped to [ipd_time, 10_000] (invariant I5).
func (p *Pacer) OnErrorRate(errorRate uint32) {
	var factor float64
	if errorRate > p.errorThreshold {
		denom := float64(100000 - p.errorThreshold)
		if denom <= 0 {
			denom = 1
		}
		slowerFrac := float64(p.slowerNum)/float64(p.slowerDen) - 1
		factor = 1 + slowerFrac*(1+float64(errorRate)-float64(p.errorThreshold))/denom
	} else {
		factor = float64(p.fasterNum) / float64(p.fasterDen)
	}
	scaled := float64(p.ipdCurrent) * factor
	next := uint32(scaled)
	if factor > 1 {
		// Round a slowdown up so a small factor still lengthens the
		// whole-microsecond IPD instead of being truncated away.
		next = uint32(math.Ceil(scaled))
	}
	p.ipdCurrent = clampIPD(next, p.ipdTime)
}

// Sleep blocks for ipd_current microseconds using a monotonic clock, per
// spec.md §4.2's precise-sleep requirement: real-sleep to within ~10ms of
// the target, then busy-wait on a monotonic microsecond clock for the
// remainder. time.Sleep/time.Now on all supported platforms are already
// monotonic-clock-backed in the Go runtime (see time.Time's monotonic
// reading, stdlib "time" package docs) — no wall-clock read is used here.
func (p *Pacer) Sleep() {
	target := time.Duration(p.ipdCurrent) * time.Microsecond
	if target <= 0 {
		return
	}
	start := time.Now()

	const coarseMargin = 10 * time.Millisecond
	if target > coarseMargin {
		coarseSleep(target - coarseMargin)
	}

	for time.Since(start) < target {
		runtime.Gosched()
	}
}

// coarseSleep performs the real-sleep phase of Sleep. It prefers
// unix.Nanosleep (matching the teacher's own golang.org/x/sys/unix import)
// where available and falls back to time.Sleep, which is a pure-Go path
// with no build tag requirements.
func coarseSleep(d time.Duration) {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	rem := &unix.Timespec{}
	for {
		err := unix.Nanosleep(&ts, rem)
		if err == nil {
			return
		}
		if err == unix.EINTR {
			ts = *rem
			continue
		}
		// Unsupported on this platform/syscall: fall back to stdlib.
		time.Sleep(d)
		return
	}
}

// WaitGuard blocks until the coarse token-bucket guard admits n bytes, a
// backstop against a misconfigured target rate (SPEC_FULL §3). It is not
// part of the spec's precise-pacing requirement and never engages under
// correctly negotiated parameters.
func (p *Pacer) WaitGuard(n int) {
	_ = p.guard.WaitN(context.Background(), n)
}
