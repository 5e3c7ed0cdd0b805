package fileio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, content []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func readAll(t *testing.T, f *os.File) []byte {
	t.Helper()
	fi, err := f.Stat()
	require.NoError(t, err)
	out := make([]byte, fi.Size())
	_, err = f.ReadAt(out, 0)
	require.NoError(t, err)
	return out
}

func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

func TestInsertBytesShiftsTail(t *testing.T) {
	content := []byte("HEADERbody")
	f := tempFile(t, content)

	require.NoError(t, InsertBytes(f, 4, 6))

	got := readAll(t, f)
	assert.Len(t, got, len(content)+4)
	assert.Equal(t, []byte("HEADER"), got[:6])
	assert.Equal(t, []byte("body"), got[10:])
}

func TestDeleteBytesClosesHole(t *testing.T) {
	f := tempFile(t, []byte("HEADERXXXXbody"))

	require.NoError(t, DeleteBytes(f, 4, 6))

	assert.Equal(t, []byte("HEADERbody"), readAll(t, f))
}

func TestInsertThenDeleteRestores(t *testing.T) {
	// Larger than one fallback chunk so the chunked path is exercised
	// for real when mmap is unavailable.
	content := pattern(3*fallbackChunk + 17)
	for name, forceFallback := range map[string]bool{"mmap": false, "fallback": true} {
		t.Run(name, func(t *testing.T) {
			if forceFallback {
				orig := mapMove
				mapMove = func(f *os.File, dest, src, count int64) error {
					return errMmapUnavailable
				}
				t.Cleanup(func() { mapMove = orig })
			}
			f := tempFile(t, content)

			require.NoError(t, InsertBytes(f, 1000, 128))
			require.NoError(t, DeleteBytes(f, 1000, 128))

			assert.True(t, bytes.Equal(content, readAll(t, f)))
		})
	}
}

func TestInsertBytesAtEnd(t *testing.T) {
	f := tempFile(t, []byte("abc"))
	require.NoError(t, InsertBytes(f, 5, 3))
	got := readAll(t, f)
	assert.Len(t, got, 8)
	assert.Equal(t, []byte("abc"), got[:3])
}

func TestDeleteBytesWholeFile(t *testing.T) {
	f := tempFile(t, []byte("abcdef"))
	require.NoError(t, DeleteBytes(f, 6, 0))
	assert.Empty(t, readAll(t, f))
}

func TestRangeErrors(t *testing.T) {
	f := tempFile(t, []byte("abcdef"))

	assert.Error(t, InsertBytes(f, 0, 0), "zero size")
	assert.Error(t, InsertBytes(f, 1, -1), "negative offset")
	assert.Error(t, InsertBytes(f, 1, 7), "offset past end")
	assert.Error(t, DeleteBytes(f, 4, 4), "range past end")

	// Nothing above may have changed the file.
	assert.Equal(t, []byte("abcdef"), readAll(t, f))
}
