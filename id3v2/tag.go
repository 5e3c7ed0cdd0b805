// Package id3v2 reads and writes ID3v2.2, v2.3 and v2.4 tags.
//
// A Tag is an ordered container of frames keyed by the frame identifier
// plus, where the format allows duplicates, a disambiguator (language,
// description, owner). Frames the registry cannot decode are preserved
// verbatim so saving never silently drops data. Loading a 2.2 or 2.3
// file upgrades its frames to 2.4 semantics; saving can target 2.4 or,
// with the documented downgrade rules, 2.3.
package id3v2

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"tagforge-backend/fileio"
)

const headerSize = 10

// Header is the outer ID3v2 tag header.
type Header struct {
	Version  byte // major version: 2, 3 or 4
	Revision byte
	Flags    byte
	Size     int // tag size excluding this header and any footer
}

func (h Header) Unsynchronised() bool { return h.Flags&0x80 != 0 }
func (h Header) ExtendedHeader() bool { return h.Flags&0x40 != 0 }
func (h Header) Experimental() bool   { return h.Flags&0x20 != 0 }
func (h Header) Footer() bool         { return h.Flags&0x10 != 0 }

func (h Header) String() string {
	return fmt.Sprintf("ID3v2.%d.%d", h.Version, h.Revision)
}

// Tag is an ordered mapping from frame key to frame.
type Tag struct {
	// Header is the tag header as read from disk; zero for a new tag.
	Header Header

	keys   []string
	frames map[string]*Frame
}

// NewTag returns an empty tag.
func NewTag() *Tag {
	return &Tag{frames: make(map[string]*Frame)}
}

// Len returns the number of frames in the tag.
func (t *Tag) Len() int { return len(t.keys) }

// Keys returns the frame keys in insertion order.
func (t *Tag) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Get returns the frame stored under key, or nil.
func (t *Tag) Get(key string) *Frame { return t.frames[key] }

// Frames returns all frames in insertion order.
func (t *Tag) Frames() []*Frame {
	out := make([]*Frame, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.frames[k])
	}
	return out
}

// Set stores f under its key, replacing any frame already there.
func (t *Tag) Set(f *Frame) {
	key := f.Key()
	if _, ok := t.frames[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.frames[key] = f
}

// Delete removes the frame stored under key and reports whether one was
// there.
func (t *Tag) Delete(key string) bool {
	if _, ok := t.frames[key]; !ok {
		return false
	}
	delete(t.frames, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return true
}

// DeleteAll removes every frame whose identifier is id, regardless of
// disambiguator.
func (t *Tag) DeleteAll(id string) {
	for _, key := range t.Keys() {
		if key == id || strings.HasPrefix(key, id+":") {
			t.Delete(key)
		}
	}
}

// getText returns the first text value of the frame with the plain id.
func (t *Tag) getText(id string) string {
	if f := t.frames[id]; f != nil {
		return f.Text()
	}
	return ""
}

func (t *Tag) setText(id string, values ...string) {
	t.Set(NewTextFrame(id, values...))
}

// Convenience accessors for the common frames.

func (t *Tag) Title() string          { return t.getText("TIT2") }
func (t *Tag) SetTitle(v string)      { t.setText("TIT2", v) }
func (t *Tag) Album() string          { return t.getText("TALB") }
func (t *Tag) SetAlbum(v string)      { t.setText("TALB", v) }
func (t *Tag) Genre() string          { return t.getText("TCON") }
func (t *Tag) SetGenre(v string)      { t.setText("TCON", v) }
func (t *Tag) Track() string          { return t.getText("TRCK") }
func (t *Tag) SetTrack(v string)      { t.setText("TRCK", v) }
func (t *Tag) SetArtists(v ...string) { t.setText("TPE1", v...) }

func (t *Tag) Artists() []string {
	if f := t.frames["TPE1"]; f != nil {
		return f.Texts()
	}
	return nil
}

func (t *Tag) Artist() string {
	if a := t.Artists(); len(a) > 0 {
		return a[0]
	}
	return ""
}

// RecordingTime returns the TDRC timestamp, zero when absent.
func (t *Tag) RecordingTime() TimeStamp {
	if f := t.frames["TDRC"]; f != nil {
		if stamps, ok := f.Values["text"].([]TimeStamp); ok && len(stamps) > 0 {
			return stamps[0]
		}
	}
	return TimeStamp{Year: -1, Month: -1, Day: -1, Hour: -1, Minute: -1, Second: -1}
}

func (t *Tag) SetRecordingTime(ts TimeStamp) {
	f := NewFrame("TDRC")
	f.Values["text"] = []TimeStamp{ts}
	t.Set(f)
}

// Comment returns the text of the first COMM frame.
func (t *Tag) Comment() string {
	for _, f := range t.Frames() {
		if f.ID == "COMM" {
			return f.Text()
		}
	}
	return ""
}

func (t *Tag) SetComment(lang, desc, text string) {
	f := NewFrame("COMM")
	f.Values["lang"] = lang
	f.Values["desc"] = desc
	f.Values["text"] = []string{text}
	t.Set(f)
}

// upgrade rewrites frames read from older versions into their 2.4
// equivalents: TYER/TDAT/TIME merge into TDRC, TORY becomes TDOR, IPLS
// becomes TIPL, and the informationless TSIZ is dropped.
func (t *Tag) upgrade() {
	twoDigits := func(s string) int {
		n, err := strconv.Atoi(s)
		if err != nil {
			return -1
		}
		return n
	}

	if year := t.getText("TYER"); year != "" {
		ts, err := ParseTimeStamp(year)
		if err == nil && !ts.IsZero() {
			// TDAT is DDMM, TIME is HHMM.
			if date := t.getText("TDAT"); len(date) == 4 {
				ts.Month = twoDigits(date[2:4])
				ts.Day = twoDigits(date[0:2])
				if clock := t.getText("TIME"); len(clock) == 4 && ts.Month >= 0 && ts.Day >= 0 {
					ts.Hour = twoDigits(clock[0:2])
					ts.Minute = twoDigits(clock[2:4])
				}
			}
			if t.Get("TDRC") == nil {
				t.SetRecordingTime(ts)
			}
		}
	}
	// The 2.3-only date frames go regardless of whether they merged;
	// they are not legal in a 2.4 tag.
	t.Delete("TYER")
	t.Delete("TDAT")
	t.Delete("TIME")

	if orig := t.getText("TORY"); orig != "" {
		if t.Get("TDOR") == nil {
			if ts, err := ParseTimeStamp(orig); err == nil && !ts.IsZero() {
				f := NewFrame("TDOR")
				f.Values["text"] = []TimeStamp{ts}
				t.Set(f)
			}
		}
		t.Delete("TORY")
	}

	if f := t.Get("IPLS"); f != nil {
		if t.Get("TIPL") == nil {
			nf := NewFrame("TIPL")
			nf.Encoding = f.Encoding
			nf.Values["people"] = f.Values["people"]
			t.Set(nf)
		}
		t.Delete("IPLS")
	}

	t.Delete("TSIZ")
}

// Load opens the file at path and parses its ID3v2 tag. A file without
// one yields a *HeaderError; callers wanting best-effort reads catch it
// and probe for an ID3v1 trailer instead.
func Load(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Delete removes the ID3v2 tag from the file at path, shrinking the
// file in place. Removing a tag that is not there is not an error.
func Delete(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	space, err := tagSpace(f)
	if err != nil || space == 0 {
		return err
	}
	return fileio.DeleteBytes(f, int64(space), 0)
}

// tagSpace returns the number of bytes the existing tag occupies at the
// start of f, including header, padding and footer; 0 when the file has
// no tag.
func tagSpace(f *os.File) (int, error) {
	var hdr [headerSize]byte
	n, err := f.ReadAt(hdr[:], 0)
	if n < headerSize {
		return 0, nil // too short to hold a tag
	}
	if err != nil {
		return 0, err
	}
	h, err := parseHeader(hdr)
	if err != nil {
		return 0, nil
	}
	space := headerSize + h.Size
	if h.Footer() {
		space += headerSize
	}
	return space, nil
}
