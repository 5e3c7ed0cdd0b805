// Package id3v1 reads and writes the fixed 128-byte ID3v1 trailer.
//
// The trailer is a last-resort format: Latin-1 only, fields truncated
// to 30 bytes, genres from a fixed table. It exists here so files that
// carry no ID3v2 header can still be read, and so stripping a file can
// remove every tag it has.
package id3v1

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/text/encoding/charmap"

	"tagforge-backend/id3v2"
)

// TagSize is the fixed on-disk size of an ID3v1 tag.
const TagSize = 128

var magic = [3]byte{'T', 'A', 'G'}

// ErrNotFound reports that the file carries no ID3v1 trailer.
var ErrNotFound = errors.New("id3v1: no tag found")

// Tag holds the fields of an ID3v1 or ID3v1.1 tag. Track is 0 when
// absent (plain v1 tags have no track field). Genre is the index into
// the genre table; 255 means unset.
type Tag struct {
	Title   string
	Artist  string
	Album   string
	Year    string
	Comment string
	Track   byte
	Genre   byte
}

// New returns an empty tag with no genre set.
func New() *Tag {
	return &Tag{Genre: 255}
}

// GenreName returns the textual genre, or "" when the index is outside
// the table.
func (t *Tag) GenreName() string {
	if int(t.Genre) < len(genres) {
		return genres[t.Genre]
	}
	return ""
}

var latin1Dec = charmap.ISO8859_1.NewDecoder()
var latin1Enc = charmap.ISO8859_1.NewEncoder()

func decodeField(b []byte) string {
	b = bytes.TrimRight(b, "\x00 ")
	out, err := latin1Dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func encodeField(dst []byte, s string) {
	b, err := latin1Enc.Bytes([]byte(s))
	if err != nil {
		b = []byte(s)
	}
	copy(dst, b)
}

// Parse decodes a 128-byte trailer. ErrNotFound when the magic is
// absent.
func Parse(b []byte) (*Tag, error) {
	if len(b) != TagSize {
		return nil, fmt.Errorf("id3v1: tag must be %d bytes, got %d", TagSize, len(b))
	}
	if !bytes.Equal(b[:3], magic[:]) {
		return nil, ErrNotFound
	}
	t := &Tag{
		Title:  decodeField(b[3:33]),
		Artist: decodeField(b[33:63]),
		Album:  decodeField(b[63:93]),
		Year:   decodeField(b[93:97]),
		Genre:  b[127],
	}
	// v1.1 steals the last two comment bytes: a zero separator and the
	// track number.
	if b[125] == 0 && b[126] != 0 {
		t.Comment = decodeField(b[97:125])
		t.Track = b[126]
	} else {
		t.Comment = decodeField(b[97:127])
	}
	return t, nil
}

// Bytes serializes the tag. A non-zero track forces the v1.1 layout.
func (t *Tag) Bytes() []byte {
	out := make([]byte, TagSize)
	copy(out, magic[:])
	encodeField(out[3:33], t.Title)
	encodeField(out[33:63], t.Artist)
	encodeField(out[63:93], t.Album)
	encodeField(out[93:97], t.Year)
	if t.Track != 0 {
		encodeField(out[97:125], t.Comment)
		out[125] = 0
		out[126] = t.Track
	} else {
		encodeField(out[97:127], t.Comment)
	}
	out[127] = t.Genre
	return out
}

// ReadFrom parses the trailer of r. ErrNotFound when the file is too
// short or carries none.
func ReadFrom(r io.ReadSeeker) (*Tag, error) {
	if _, err := r.Seek(-TagSize, io.SeekEnd); err != nil {
		return nil, ErrNotFound
	}
	buf := make([]byte, TagSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return Parse(buf)
}

// Load parses the trailer of the file at path.
func Load(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFrom(f)
}

// Save writes the tag to the end of the file at path, replacing an
// existing trailer or appending a new one.
func (t *Tag) Save(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	offset, err := trailerOffset(f)
	if err != nil {
		return err
	}
	if offset < 0 {
		if offset, err = f.Seek(0, io.SeekEnd); err != nil {
			return err
		}
	}
	if _, err := f.WriteAt(t.Bytes(), offset); err != nil {
		return err
	}
	return f.Sync()
}

// Delete truncates the trailer off the file at path. Removing a tag
// that is not there is not an error.
func Delete(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	offset, err := trailerOffset(f)
	if err != nil || offset < 0 {
		return err
	}
	return f.Truncate(offset)
}

// trailerOffset returns the offset of the existing trailer, -1 when
// there is none.
func trailerOffset(f *os.File) (int64, error) {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return -1, err
	}
	if end < TagSize {
		return -1, nil
	}
	var m [3]byte
	if _, err := f.ReadAt(m[:], end-TagSize); err != nil {
		return -1, err
	}
	if m != magic {
		return -1, nil
	}
	return end - TagSize, nil
}

// ToID3v2 lifts the trailer into an equivalent set of ID3v2.4 frames so
// the rest of the system only ever handles one model.
func (t *Tag) ToID3v2() *id3v2.Tag {
	out := id3v2.NewTag()
	if t.Title != "" {
		out.SetTitle(t.Title)
	}
	if t.Artist != "" {
		out.SetArtists(t.Artist)
	}
	if t.Album != "" {
		out.SetAlbum(t.Album)
	}
	if t.Year != "" {
		if y, err := strconv.Atoi(t.Year); err == nil && y > 0 {
			out.SetRecordingTime(id3v2.TimeStamp{
				Year: y, Month: -1, Day: -1, Hour: -1, Minute: -1, Second: -1,
			})
		}
	}
	if t.Comment != "" {
		out.SetComment("eng", "ID3v1 Comment", t.Comment)
	}
	if t.Track != 0 {
		out.SetTrack(strconv.Itoa(int(t.Track)))
	}
	if g := t.GenreName(); g != "" {
		out.SetGenre(g)
	}
	return out
}

// FromID3v2 projects an ID3v2 tag down to the v1 fields, truncating
// what does not fit.
func FromID3v2(src *id3v2.Tag) *Tag {
	t := New()
	t.Title = src.Title()
	t.Artist = src.Artist()
	t.Album = src.Album()
	if ts := src.RecordingTime(); !ts.IsZero() {
		t.Year = fmt.Sprintf("%04d", ts.Year)
	}
	t.Comment = src.Comment()
	if n, err := strconv.Atoi(firstNumber(src.Track())); err == nil && n > 0 && n < 256 {
		t.Track = byte(n)
	}
	for i, g := range genres {
		if g == src.Genre() {
			t.Genre = byte(i)
			break
		}
	}
	return t
}

// firstNumber cuts "3/12" style track strings down to their leading
// number.
func firstNumber(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s[:i]
		}
	}
	return s
}
