package tsunami

import "errors"

// Error taxonomy per SPEC_FULL §9: Protocol, Network, Resource, Invariant.
var (
	// Protocol errors
	ErrVersionMismatch   = errors.New("tsunami: protocol revision mismatch")
	ErrAuthFailed        = errors.New("tsunami: challenge-response authentication failed")
	ErrMalformedRecord   = errors.New("tsunami: malformed control record")
	ErrFileNotFound      = errors.New("tsunami: requested file not found")
	ErrBlockSizeMismatch = errors.New("tsunami: server echoed a different block size than requested")
	ErrRestartOutOfRange = errors.New("tsunami: RESTART block index out of range")

	// Network errors
	ErrControlClosed = errors.New("tsunami: control channel closed")
	ErrDataClosed    = errors.New("tsunami: data channel closed")

	// Resource errors
	ErrRingSaturated  = errors.New("tsunami: ring buffer saturated")
	ErrFileOpenFailed = errors.New("tsunami: failed to open file")

	// Invariant violations
	ErrDuplicateTerminal = errors.New("tsunami: duplicate terminal detection")
	ErrZeroBlockIndex    = errors.New("tsunami: received wire block index 0, which is reserved as the ring sentinel")
)
