package tsunami

// FileMeta describes the file being transferred, as negotiated at file-open
// time (spec.md §3). BlockCount and the final block's short length are
// derived from Length and the negotiated BlockSize.
type FileMeta struct {
	Length    uint64
	BlockSize uint32
	Epoch     uint32 // server-assigned Unix timestamp (run epoch T)
}

// BlockCount returns N = ceil(L/B), with N=0 for an empty file.
func (f FileMeta) BlockCount() uint32 {
	if f.BlockSize == 0 || f.Length == 0 {
		return 0
	}
	n := f.Length / uint64(f.BlockSize)
	if f.Length%uint64(f.BlockSize) != 0 {
		n++
	}
	return uint32(n)
}

// BlockLength returns the number of useful payload bytes for the given
// 1-based block index: BlockSize for all but the final block, which
// carries L mod B bytes (or a full B if L mod B == 0).
func (f FileMeta) BlockLength(blockIndex uint32) uint32 {
	n := f.BlockCount()
	if blockIndex == 0 || blockIndex > n {
		return 0
	}
	if blockIndex < n {
		return f.BlockSize
	}
	rem := f.Length % uint64(f.BlockSize)
	if rem == 0 {
		return f.BlockSize
	}
	return uint32(rem)
}

// Offset returns the byte offset of the given 1-based block index:
// B * (blockIndex - 1).
func (f FileMeta) Offset(blockIndex uint32) int64 {
	return int64(f.BlockSize) * int64(blockIndex-1)
}
