package tsunami

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileMetaBlockCountBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		length uint64
		block  uint32
		wantN  uint32
	}{
		{"empty file", 0, 32768, 0},
		{"exactly one block", 32768, 32768, 1},
		{"one block plus one byte", 32769, 32768, 2},
		{"exact multiple", 65536, 32768, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := FileMeta{Length: c.length, BlockSize: c.block}
			assert.Equal(t, c.wantN, f.BlockCount())
		})
	}
}

func TestFileMetaBlockLengthShortFinalBlock(t *testing.T) {
	f := FileMeta{Length: 32769, BlockSize: 32768}
	assert.EqualValues(t, 32768, f.BlockLength(1))
	assert.EqualValues(t, 1, f.BlockLength(2))
}

func TestFileMetaBlockLengthExactMultipleFinalBlockIsFull(t *testing.T) {
	f := FileMeta{Length: 65536, BlockSize: 32768}
	assert.EqualValues(t, 32768, f.BlockLength(1))
	assert.EqualValues(t, 32768, f.BlockLength(2))
}

func TestFileMetaOffset(t *testing.T) {
	f := FileMeta{Length: 100000, BlockSize: 32768}
	assert.EqualValues(t, 0, f.Offset(1))
	assert.EqualValues(t, 32768, f.Offset(2))
	assert.EqualValues(t, 65536, f.Offset(3))
}
