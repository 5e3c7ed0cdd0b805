package id3v2

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesRoundTrip(t *testing.T) {
	tag := NewTag()
	tag.SetTitle("A Title")
	tag.SetArtists("One", "Two")
	tag.SetAlbum("An Album")
	tag.SetComment("eng", "notes", "a comment")
	tag.SetRecordingTime(TimeStamp{2004, 6, 5, -1, -1, -1})

	blob, err := tag.Bytes(SaveOptions{})
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, "ID3v2.4.0", got.Header.String())
	assert.Equal(t, "A Title", got.Title())
	assert.Equal(t, []string{"One", "Two"}, got.Artists())
	assert.Equal(t, "An Album", got.Album())
	assert.Equal(t, "a comment", got.Comment())
	assert.Equal(t, "2004-06-05", got.RecordingTime().String())
}

func TestBytesPadding(t *testing.T) {
	tag := NewTag()
	tag.SetTitle("x")

	blob, err := tag.Bytes(SaveOptions{Padding: 64})
	require.NoError(t, err)
	frames, err := tag.frameBytes(4)
	require.NoError(t, err)
	assert.Len(t, blob, headerSize+len(frames)+64)

	// Negative means none.
	blob, err = tag.Bytes(SaveOptions{Padding: -1})
	require.NoError(t, err)
	assert.Len(t, blob, headerSize+len(frames))
}

func TestBytesRejectsBadVersion(t *testing.T) {
	tag := NewTag()
	_, err := tag.Bytes(SaveOptions{Version: 2})
	assert.Error(t, err)
}

func TestV23DowngradeSplitsRecordingTime(t *testing.T) {
	tag := NewTag()
	tag.SetTitle("x")
	tag.SetRecordingTime(TimeStamp{2004, 6, 5, 12, 3, -1})

	blob, err := tag.Bytes(SaveOptions{Version: 3, Padding: -1})
	require.NoError(t, err)

	// Reparse the raw 2.3 body before the upgrade pass folds the split
	// frames back together.
	raw := &Tag{frames: make(map[string]*Frame)}
	p := &v23Parser{}
	require.NoError(t, p.parse(raw, blob[headerSize:]))
	assert.Equal(t, blob[3], byte(3))
	assert.Equal(t, "2004", raw.getText("TYER"))
	assert.Equal(t, "0506", raw.getText("TDAT"))
	assert.Equal(t, "1203", raw.getText("TIME"))

	// A full decode restores the 2.4 shape.
	got, err := Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, "2004-06-05 12:03", got.RecordingTime().String())
}

func TestV23DowngradeMergesPeopleLists(t *testing.T) {
	tag := NewTag()
	tipl := NewFrame("TIPL")
	tipl.Values["people"] = [][2]string{{"producer", "p"}}
	tag.Set(tipl)
	tmcl := NewFrame("TMCL")
	tmcl.Values["people"] = [][2]string{{"guitar", "g"}}
	tag.Set(tmcl)

	blob, err := tag.Bytes(SaveOptions{Version: 3, Padding: -1})
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	// IPLS upgrades back to TIPL on read.
	f := got.Get("TIPL")
	require.NotNil(t, f)
	assert.Equal(t, [][2]string{{"producer", "p"}, {"guitar", "g"}}, f.Values["people"])
	assert.Nil(t, got.Get("TMCL"))
}

func TestV23DowngradeDropsV24OnlyFrames(t *testing.T) {
	tag := NewTag()
	tag.SetTitle("x")
	rva2 := NewFrame("RVA2")
	rva2.Values["desc"] = "track"
	rva2.Values["channel"] = byte(1)
	rva2.Values["gain"] = 1.0
	rva2.Values["peak"] = 0.0
	tag.Set(rva2)
	tag.Set(NewTextFrame("TSST", "subtitle"))

	blob, err := tag.Bytes(SaveOptions{Version: 3, Padding: -1})
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "x", got.Title())
}

func TestV23DowngradeClampsEncoding(t *testing.T) {
	tag := NewTag()
	f := NewTextFrame("TIT2", "Tïtle")
	f.Encoding = EncodingUTF8
	tag.Set(f)

	blob, err := tag.Bytes(SaveOptions{Version: 3, Padding: -1})
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	title := got.Get("TIT2")
	require.NotNil(t, title)
	assert.Equal(t, EncodingUTF16, title.Encoding)
	assert.Equal(t, "Tïtle", title.Text())

	// The original tag is untouched.
	assert.Equal(t, EncodingUTF8, tag.Get("TIT2").Encoding)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	audio := []byte("FAKE AUDIO DATA")
	require.NoError(t, os.WriteFile(path, audio, 0o644))

	tag := NewTag()
	tag.SetTitle("First")
	require.NoError(t, tag.Save(path, SaveOptions{Padding: 256}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title())

	// The audio survives after the tag space.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, audio))
}

func TestSaveReusesExistingSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("FAKE AUDIO DATA"), 0o644))

	tag := NewTag()
	tag.SetTitle("A somewhat longer title than the second one")
	require.NoError(t, tag.Save(path, SaveOptions{Padding: 512}))
	first, err := os.Stat(path)
	require.NoError(t, err)

	tag.SetTitle("Short")
	require.NoError(t, tag.Save(path, SaveOptions{Padding: 512}))
	second, err := os.Stat(path)
	require.NoError(t, err)

	// The smaller tag fits in the hole; the file does not move.
	assert.Equal(t, first.Size(), second.Size())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Short", got.Title())
}

func TestSaveGrowsWhenNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	audio := []byte("FAKE AUDIO DATA")
	require.NoError(t, os.WriteFile(path, audio, 0o644))

	tag := NewTag()
	tag.SetTitle("x")
	require.NoError(t, tag.Save(path, SaveOptions{Padding: -1}))

	tag.SetComment("eng", "", string(bytes.Repeat([]byte{'y'}, 300)))
	require.NoError(t, tag.Save(path, SaveOptions{Padding: 128}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Title())
	assert.Len(t, got.Comment(), 300)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, audio))
}

func TestSaveTooLargeLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	audio := []byte("FAKE AUDIO DATA")
	require.NoError(t, os.WriteFile(path, audio, 0o644))

	tag := NewTag()
	tag.SetTitle("x")
	err := tag.Save(path, SaveOptions{Padding: synchsafeMax})
	require.Error(t, err)

	// The failed save must not have resized the file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, audio, data)
}

func TestDeleteRemovesTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	audio := []byte("FAKE AUDIO DATA")
	require.NoError(t, os.WriteFile(path, audio, 0o644))

	tag := NewTag()
	tag.SetTitle("gone soon")
	require.NoError(t, tag.Save(path, SaveOptions{}))

	require.NoError(t, Delete(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, audio, data)

	// Deleting again is a no-op.
	require.NoError(t, Delete(path))
}

func TestUnknownFrameSurvivesRewrite(t *testing.T) {
	raw := []byte{9, 8, 7}
	tag := NewTag()
	tag.Set(&Frame{ID: "XQZZ", Raw: raw})
	tag.SetTitle("t")

	blob, err := tag.Bytes(SaveOptions{})
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(blob))
	require.NoError(t, err)

	f := got.Get("XQZZ")
	require.NotNil(t, f)
	assert.Equal(t, raw, f.Raw)
}
