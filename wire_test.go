package tsunami

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDatagramRoundTrip(t *testing.T) {
	buf := make([]byte, DatagramHeaderSize+8)
	payload := []byte("abcdefgh")
	n, err := EncodeDatagram(buf, 42, BlockOriginal, payload)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	dg, err := DecodeDatagram(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 42, dg.BlockIndex)
	assert.Equal(t, BlockOriginal, dg.BlockType)
	assert.Equal(t, payload, dg.Payload)
}

func TestEncodeDatagramBufferTooSmall(t *testing.T) {
	buf := make([]byte, DatagramHeaderSize)
	_, err := EncodeDatagram(buf, 1, BlockOriginal, []byte("too long"))
	assert.Error(t, err)
}

func TestDecodeDatagramShort(t *testing.T) {
	_, err := DecodeDatagram([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestControlRecordRoundTrip(t *testing.T) {
	rec := ControlRecord{Type: RequestErrorRate, Block: 0, ErrorRate: 12345}
	buf := make([]byte, ControlRecordSize)
	require.NoError(t, rec.Encode(buf))

	decoded, err := DecodeControlRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestControlRecordBackToBackBurst(t *testing.T) {
	// spec.md §3: multiple RETRANSMIT records may be sent as one
	// contiguous burst.
	recs := []ControlRecord{
		{Type: RequestRetransmit, Block: 1},
		{Type: RequestRetransmit, Block: 2},
		{Type: RequestRetransmit, Block: 3},
	}
	buf := make([]byte, 0, ControlRecordSize*len(recs))
	tmp := make([]byte, ControlRecordSize)
	for _, r := range recs {
		require.NoError(t, r.Encode(tmp))
		buf = append(buf, tmp...)
	}
	require.Len(t, buf, ControlRecordSize*3)
	for i, want := range recs {
		got, err := DecodeControlRecord(buf[i*ControlRecordSize:])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBlockTypeAndRequestTypeStrings(t *testing.T) {
	assert.Equal(t, "ORIGINAL", BlockOriginal.String())
	assert.Equal(t, "RETRANSMIT", BlockRetransmit.String())
	assert.Equal(t, "TERMINATE", BlockTerminate.String())
	assert.Equal(t, "RESTART", RequestRestart.String())
	assert.Equal(t, "STOP", RequestStop.String())
}
