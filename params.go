package tsunami

// ProtocolRevision is the fixed 32-bit constant exchanged during the
// version handshake (spec.md §4.1). Both sides must agree exactly.
const ProtocolRevision uint32 = 0x20021202

// Defaults per spec.md §3.
const (
	DefaultBlockSize    = 32768
	DefaultTargetRate   = 10_000_000 // bits/s
	DefaultErrorRate    = 10         // parts per 100000
	DefaultSlowerNum    = 25
	DefaultSlowerDen    = 24
	DefaultFasterNum    = 5
	DefaultFasterDen    = 6
	DefaultHistoryWeight = 75

	// ipdCeilingMicros is the hard brake on degenerate rate adaptation
	// (spec.md §4.5).
	ipdCeilingMicros = 10_000
)

// Params bundles the transfer parameters negotiated per file (spec.md §3).
type Params struct {
	BlockSize    uint32 // B, bytes
	TargetRate   uint32 // R, bits/s
	ErrorRate    uint32 // E, parts per 100000
	SlowerNum    uint16
	SlowerDen    uint16
	FasterNum    uint16
	FasterDen    uint16
	HistoryWeight uint8 // H, EWMA weight in [0,100]
	NoRetransmit bool
}

// NewDefaultParams returns the protocol's documented default parameter set.
func NewDefaultParams() Params {
	return Params{
		BlockSize:     DefaultBlockSize,
		TargetRate:    DefaultTargetRate,
		ErrorRate:     DefaultErrorRate,
		SlowerNum:     DefaultSlowerNum,
		SlowerDen:     DefaultSlowerDen,
		FasterNum:     DefaultFasterNum,
		FasterDen:     DefaultFasterDen,
		HistoryWeight: DefaultHistoryWeight,
	}
}

// IPDTime returns the IPD floor in microseconds for these parameters:
// ipd_time = 1_000_000 * 8 * B / R, capped at ipdCeilingMicros (10000) and
// raised to at least 1. A zero TargetRate yields ipdCeilingMicros.
func (p Params) IPDTime() uint32 {
	if p.TargetRate == 0 {
		return ipdCeilingMicros
	}
	ipd := (uint64(1_000_000) * 8 * uint64(p.BlockSize)) / uint64(p.TargetRate)
	if ipd > ipdCeilingMicros {
		return ipdCeilingMicros
	}
	if ipd == 0 {
		return 1
	}
	return uint32(ipd)
}

// Merge layers overrides on top of p: any zero-valued field in overrides
// keeps p's value. This lets a CLI layer config-file defaults, then flags,
// then per-transfer negotiation, without the core depending on any
// particular config-file format (SPEC_FULL §4).
func (p Params) Merge(overrides Params) Params {
	out := p
	if overrides.BlockSize != 0 {
		out.BlockSize = overrides.BlockSize
	}
	if overrides.TargetRate != 0 {
		out.TargetRate = overrides.TargetRate
	}
	if overrides.ErrorRate != 0 {
		out.ErrorRate = overrides.ErrorRate
	}
	if overrides.SlowerNum != 0 {
		out.SlowerNum = overrides.SlowerNum
	}
	if overrides.SlowerDen != 0 {
		out.SlowerDen = overrides.SlowerDen
	}
	if overrides.FasterNum != 0 {
		out.FasterNum = overrides.FasterNum
	}
	if overrides.FasterDen != 0 {
		out.FasterDen = overrides.FasterDen
	}
	if overrides.HistoryWeight != 0 {
		out.HistoryWeight = overrides.HistoryWeight
	}
	out.NoRetransmit = out.NoRetransmit || overrides.NoRetransmit
	return out
}
