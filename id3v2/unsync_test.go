package id3v2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsyncEncode(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		out  []byte
	}{
		{"false sync gets stuffed", []byte{0xFF, 0xE0}, []byte{0xFF, 0x00, 0xE0}},
		{"ff before zero gets stuffed", []byte{0xFF, 0x00}, []byte{0xFF, 0x00, 0x00}},
		{"trailing ff gets stuffed", []byte{0x12, 0xFF}, []byte{0x12, 0xFF, 0x00}},
		{"safe ff pair untouched", []byte{0xFF, 0x30}, []byte{0xFF, 0x30}},
		{"empty", nil, []byte{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.out, unsyncEncode(c.in))
		})
	}
}

func TestUnsyncRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{0xFF, 0xFF, 0xFF},
		{0xFF, 0x00, 0xFF, 0xE0, 0x00},
		{0x00, 0x01, 0xFF},
		{0xFF},
	}
	for _, in := range inputs {
		enc := unsyncEncode(in)
		dec, err := unsyncDecode(enc)
		require.NoError(t, err)
		assert.Equal(t, in, dec)
	}
}

func TestUnsyncDecodeErrors(t *testing.T) {
	// A surviving false sync means the data was never stuffed.
	_, err := unsyncDecode([]byte{0xFF, 0xE0})
	assert.ErrorIs(t, err, errBadUnsync)

	_, err = unsyncDecode([]byte{0xFF, 0xFF})
	assert.ErrorIs(t, err, errBadUnsync)

	// Nor may the data end mid-sequence.
	_, err = unsyncDecode([]byte{0x10, 0xFF})
	assert.ErrorIs(t, err, errBadUnsync)
}

func TestUnsyncDecodeDropsStuffing(t *testing.T) {
	dec, err := unsyncDecode([]byte{0xFF, 0x00, 0x12})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x12}, dec)

	// A 0xFF followed by a low byte needs no stuffing and keeps it.
	dec, err = unsyncDecode([]byte{0xFF, 0x12})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x12}, dec)
}
