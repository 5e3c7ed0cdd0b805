package id3v2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodingRoundTrip(t *testing.T) {
	cases := []struct {
		enc  Encoding
		text string
	}{
		{EncodingLatin1, "a test"},
		{EncodingLatin1, "café"},
		{EncodingUTF16, "répertoire 世界"},
		{EncodingUTF16BE, "répertoire 世界"},
		{EncodingUTF8, "répertoire 世界"},
	}
	for _, c := range cases {
		t.Run(c.enc.String(), func(t *testing.T) {
			b, err := c.enc.encodeText(c.text, false)
			require.NoError(t, err)
			got, err := c.enc.decodeText(b, true)
			require.NoError(t, err)
			assert.Equal(t, c.text, got)
		})
	}
}

func TestLatin1Unrepresentable(t *testing.T) {
	_, err := EncodingLatin1.encodeText("世界", false)
	assert.Error(t, err)
}

func TestUTF16BOMHandling(t *testing.T) {
	// Big-endian BOM.
	got, err := EncodingUTF16.decodeText([]byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}, true)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	// Little-endian BOM.
	got, err = EncodingUTF16.decodeText([]byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}, true)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	// Writes carry a big-endian BOM.
	b, err := EncodingUTF16.encodeText("hi", false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}, b)
}

func TestOddLengthUTF16(t *testing.T) {
	data := []byte{0x00, 'h', 0x00, 'i', 0x00}

	_, err := EncodingUTF16BE.decodeText(data, true)
	assert.Error(t, err, "strict mode rejects odd length")

	got, err := EncodingUTF16BE.decodeText(data, false)
	require.NoError(t, err)
	assert.Equal(t, "hi\x00", got)
}

func TestTerminators(t *testing.T) {
	assert.Equal(t, []byte{0}, EncodingLatin1.terminator())
	assert.Equal(t, []byte{0}, EncodingUTF8.terminator())
	assert.Equal(t, []byte{0, 0}, EncodingUTF16.terminator())
	assert.Equal(t, []byte{0, 0}, EncodingUTF16BE.terminator())

	b, err := EncodingUTF8.encodeText("x", true)
	require.NoError(t, err)
	assert.Equal(t, []byte{'x', 0}, b)
}

func TestSplitTerminated(t *testing.T) {
	value, rest, found := splitTerminated([]byte("abc\x00def"), EncodingLatin1)
	assert.True(t, found)
	assert.Equal(t, []byte("abc"), value)
	assert.Equal(t, []byte("def"), rest)

	// No terminator: the whole buffer is the value.
	value, rest, found = splitTerminated([]byte("abc"), EncodingUTF8)
	assert.False(t, found)
	assert.Equal(t, []byte("abc"), value)
	assert.Empty(t, rest)

	// Wide terminators must be aligned to 16-bit units: the zero pair
	// spanning two code units is not a terminator.
	wide := []byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 'r', 's'}
	value, rest, found = splitTerminated(wide, EncodingUTF16BE)
	assert.True(t, found)
	assert.Equal(t, wide[:4], value)
	assert.Equal(t, []byte{'r', 's'}, rest)
}
