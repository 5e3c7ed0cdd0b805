package handlers

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagforge-backend/config"
	"tagforge-backend/id3v1"
	"tagforge-backend/id3v2"
	"tagforge-backend/models"
	"tagforge-backend/probe"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Port:        8080,
		MaxUploadMB: 8,
		LogLevel:    "info",
		LogFormat:   "json",
		Padding:     64,
	}
	h := NewTagHandler(cfg, zerolog.Nop())

	r := gin.New()
	r.GET("/api/v1/health", h.HealthCheck)
	r.POST("/api/v1/tags/read", h.ReadTags)
	r.POST("/api/v1/tags/write", h.WriteTags)
	r.POST("/api/v1/tags/strip", h.StripTags)
	return r
}

// upload builds a multipart body with the audio file and extra fields.
func upload(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("audio_file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func post(r *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// taggedMP3 returns fake audio data behind an ID3v2.3 tag with the
// given title.
func taggedMP3(t *testing.T, title string) []byte {
	t.Helper()
	tag := id3v2.NewTag()
	tag.SetTitle(title)
	blob, err := tag.Bytes(id3v2.SaveOptions{Version: 3, Padding: 16})
	require.NoError(t, err)
	return append(blob, []byte("FAKE AUDIO DATA")...)
}

// emptyASF is a minimal ASF header object with no children.
func emptyASF() []byte {
	out := append([]byte(nil), asfMagic...)
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], 30)
	out = append(out, size[:]...)
	out = append(out, 0, 0, 0, 0, 0x01, 0x02)
	return out
}

func TestHealthCheck(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestReadTagsID3v2(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.mp3", taggedMP3(t, "Test"), nil)
	w := post(r, "/api/v1/tags/read", body, ctype)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ReadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ID3v2.3.0", resp.Format)
	require.Len(t, resp.Frames, 1)
	assert.Equal(t, "TIT2", resp.Frames[0].ID)
	assert.Equal(t, []string{"Test"}, resp.Frames[0].Text)
}

func TestReadTagsID3v1Fallback(t *testing.T) {
	v1 := &id3v1.Tag{Title: "Old Title", Artist: "Old Artist", Genre: 17}
	data := append([]byte("FAKE AUDIO DATA"), v1.Bytes()...)

	r := newRouter()
	body, ctype := upload(t, "song.mp3", data, nil)
	w := post(r, "/api/v1/tags/read", body, ctype)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ReadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ID3v1", resp.Format)

	titles := map[string][]string{}
	for _, f := range resp.Frames {
		titles[f.ID] = f.Text
	}
	assert.Equal(t, []string{"Old Title"}, titles["TIT2"])
	assert.Equal(t, []string{"Old Artist"}, titles["TPE1"])
	assert.Equal(t, []string{"Rock"}, titles["TCON"])
}

func TestReadTagsNoTags(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.mp3", []byte("no tags in here"), nil)
	w := post(r, "/api/v1/tags/read", body, ctype)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ReadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Frames)
	assert.Equal(t, "No tags found", resp.Message)
}

func TestReadTagsASF(t *testing.T) {
	r := newRouter()

	// Write attributes into the empty container first.
	body, ctype := upload(t, "song.wma", emptyASF(), map[string]string{
		"title":           "WMA Title",
		"attr:WM/Composer": "Someone",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ASF", w.Header().Get("X-Tag-Format"))

	body, ctype = upload(t, "song.wma", w.Body.Bytes(), nil)
	w = post(r, "/api/v1/tags/read", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ReadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ASF", resp.Format)

	values := map[string]any{}
	for _, a := range resp.Attributes {
		values[a.Name] = a.Value
	}
	assert.Equal(t, "WMA Title", values["Title"])
	assert.Equal(t, "Someone", values["WM/Composer"])
}

func TestReadTagsMissingFile(t *testing.T) {
	r := newRouter()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "no file"))
	require.NoError(t, mw.Close())

	w := post(r, "/api/v1/tags/read", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteTags(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.mp3", []byte("FAKE AUDIO DATA"), map[string]string{
		"title":  "New Title",
		"artist": "One/Two",
		"album":  "New Album",
		"year":   "2004-06-05",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ID3v2.4.0", w.Header().Get("X-Tag-Format"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "song_tagged.mp3")
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))

	tag, err := id3v2.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "New Title", tag.Title())
	assert.Equal(t, []string{"One", "Two"}, tag.Artists())
	assert.Equal(t, "New Album", tag.Album())
	assert.Equal(t, "2004-06-05", tag.RecordingTime().String())
	assert.True(t, bytes.HasSuffix(w.Body.Bytes(), []byte("FAKE AUDIO DATA")))
}

func TestWriteTagsVersion3(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.mp3", taggedMP3(t, "Old"), map[string]string{
		"title":   "Updated",
		"version": "3",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ID3v2.3.0", w.Header().Get("X-Tag-Format"))

	tag, err := id3v2.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "ID3v2.3.0", tag.Header.String())
	assert.Equal(t, "Updated", tag.Title())
}

func TestWriteTagsBadVersion(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.mp3", []byte("FAKE AUDIO DATA"), map[string]string{
		"title":   "x",
		"version": "5",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWriteTagsCustomFrame(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.mp3", []byte("FAKE AUDIO DATA"), map[string]string{
		"frame:TPUB": "A Label",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)

	tag, err := id3v2.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	f := tag.Get("TPUB")
	require.NotNil(t, f)
	assert.Equal(t, "A Label", f.Text())

	// Non-text frames cannot be set through the form.
	body, ctype = upload(t, "song.mp3", []byte("FAKE AUDIO DATA"), map[string]string{
		"frame:APIC": "nope",
	})
	w = post(r, "/api/v1/tags/write", body, ctype)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWriteTagsSetLength(t *testing.T) {
	// Four 417-byte MPEG1 layer III frames at 128 kbit/s, 44100 Hz.
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	audio := bytes.Repeat(frame, 4)

	info, err := probe.Detect(audio)
	require.NoError(t, err)

	r := newRouter()
	body, ctype := upload(t, "song.mp3", audio, map[string]string{
		"set_length": "true",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)

	tag, err := id3v2.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	f := tag.Get("TLEN")
	require.NotNil(t, f)
	assert.Equal(t, strconv.FormatInt(info.DurationMillis(), 10), f.Text())
}

func TestWriteRefreshesID3v1Trailer(t *testing.T) {
	v1 := &id3v1.Tag{Title: "Old Title", Genre: 255}
	data := append([]byte("FAKE AUDIO DATA"), v1.Bytes()...)

	r := newRouter()
	body, ctype := upload(t, "song.mp3", data, map[string]string{
		"title": "New Title",
	})
	w := post(r, "/api/v1/tags/write", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)

	out := w.Body.Bytes()
	require.GreaterOrEqual(t, len(out), id3v1.TagSize)
	got, err := id3v1.Parse(out[len(out)-id3v1.TagSize:])
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)
}

func TestStripTags(t *testing.T) {
	v1 := &id3v1.Tag{Title: "Old", Genre: 255}
	data := append(taggedMP3(t, "Old"), v1.Bytes()...)

	r := newRouter()
	body, ctype := upload(t, "song.mp3", data, nil)
	w := post(r, "/api/v1/tags/strip", body, ctype)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "song_stripped.mp3")
	assert.Equal(t, []byte("FAKE AUDIO DATA"), w.Body.Bytes())
}

func TestStripTagsASF(t *testing.T) {
	r := newRouter()
	body, ctype := upload(t, "song.wma", emptyASF(), map[string]string{"title": "gone"})
	w := post(r, "/api/v1/tags/write", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)

	body, ctype = upload(t, "song.wma", w.Body.Bytes(), nil)
	w = post(r, "/api/v1/tags/strip", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)

	body, ctype = upload(t, "song.wma", w.Body.Bytes(), nil)
	w = post(r, "/api/v1/tags/read", body, ctype)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ReadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Attributes)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "song_tagged.mp3", outputName("song.mp3", "_tagged"))
	assert.Equal(t, "a_stripped.wav", outputName("/uploads/a.wav", "_stripped"))
	assert.Equal(t, "noext_tagged", outputName("noext", "_tagged"))
}
