// Package handlers implements the HTTP endpoints.
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tagforge-backend/asf"
	"tagforge-backend/config"
	"tagforge-backend/id3v1"
	"tagforge-backend/id3v2"
	"tagforge-backend/models"
	"tagforge-backend/probe"
)

// asfMagic is the on-disk header object GUID every ASF file starts
// with.
var asfMagic = []byte{
	0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11,
	0xA6, 0xD9, 0x00, 0xAA, 0x00, 0x62, 0xCE, 0x6C,
}

// asfAttrNames maps the common form fields onto their ASF attribute
// names.
var asfAttrNames = map[string]string{
	"title":   "Title",
	"artist":  "Author",
	"album":   "WM/AlbumTitle",
	"genre":   "WM/Genre",
	"year":    "WM/Year",
	"track":   "WM/TrackNumber",
	"comment": "Description",
}

type TagHandler struct {
	cfg *config.Config
	log zerolog.Logger
}

func NewTagHandler(cfg *config.Config, log zerolog.Logger) *TagHandler {
	return &TagHandler{cfg: cfg, log: log}
}

func (h *TagHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Tag service is running",
		"version": "1.0.0",
	})
}

// readUpload parses the multipart form and returns the audio_file
// contents. A false ok means the error response has been written.
func (h *TagHandler) readUpload(c *gin.Context) (data []byte, filename string, ok bool) {
	limit := int64(h.cfg.MaxUploadMB) << 20
	if err := c.Request.ParseMultipartForm(limit); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to parse form: %v", err),
		})
		return nil, "", false
	}
	file, header, err := c.Request.FormFile("audio_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Audio file is required",
		})
		return nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to read audio file: %v", err),
		})
		return nil, "", false
	}
	return data, header.Filename, true
}

func isASF(data []byte) bool {
	return bytes.HasPrefix(data, asfMagic)
}

// ReadTags parses the uploaded file's metadata and returns it as JSON.
// Files without an ID3v2 header fall back to the ID3v1 trailer.
func (h *TagHandler) ReadTags(c *gin.Context) {
	data, filename, ok := h.readUpload(c)
	if !ok {
		return
	}
	log := h.log.With().Str("file", filename).Int("bytes", len(data)).Logger()

	if isASF(data) {
		f, err := asf.Decode(bytes.NewReader(data))
		if err != nil {
			log.Warn().Err(err).Msg("ASF parse failed")
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Message: fmt.Sprintf("Failed to parse ASF metadata: %v", err),
			})
			return
		}
		resp := models.ReadResponse{Success: true, Format: "ASF"}
		for _, a := range f.Attributes() {
			resp.Attributes = append(resp.Attributes, attributeInfo(a))
		}
		log.Info().Int("attributes", len(resp.Attributes)).Msg("read ASF metadata")
		c.JSON(http.StatusOK, resp)
		return
	}

	resp := models.ReadResponse{Success: true}
	tag, err := id3v2.Decode(bytes.NewReader(data))
	switch {
	case err == nil:
		resp.Format = tag.Header.String()
	default:
		var hdrErr *id3v2.HeaderError
		if !errors.As(err, &hdrErr) {
			log.Warn().Err(err).Msg("tag parse failed")
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Message: fmt.Sprintf("Failed to parse tag: %v", err),
			})
			return
		}
		v1, v1err := readTrailer(data)
		if v1err != nil {
			resp.Message = "No tags found"
			tag = nil
		} else {
			tag = v1.ToID3v2()
			resp.Format = "ID3v1"
		}
	}

	if tag != nil {
		for _, f := range tag.Frames() {
			resp.Frames = append(resp.Frames, frameInfo(f))
		}
	}
	if info, err := probe.Detect(data); err == nil {
		resp.Stream = &models.StreamInfo{
			Duration:   info.Duration,
			Bitrate:    info.Bitrate,
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
			VBR:        info.VBR,
		}
	}
	log.Info().Str("format", resp.Format).Int("frames", len(resp.Frames)).Msg("read tags")
	c.JSON(http.StatusOK, resp)
}

func readTrailer(data []byte) (*id3v1.Tag, error) {
	if len(data) < id3v1.TagSize {
		return nil, id3v1.ErrNotFound
	}
	return id3v1.Parse(data[len(data)-id3v1.TagSize:])
}

func frameInfo(f *id3v2.Frame) models.FrameInfo {
	info := models.FrameInfo{ID: f.ID, Key: f.Key()}
	if f.IsUnknown() {
		info.Size = len(f.Raw)
		return info
	}
	info.Text = f.Texts()
	for name, v := range f.Values {
		if name == "text" || name == "enc" {
			continue
		}
		// Binary payloads are reported by size, not content.
		if b, isBytes := v.([]byte); isBytes {
			if info.Fields == nil {
				info.Fields = make(map[string]any)
			}
			info.Fields[name+"_size"] = len(b)
			continue
		}
		if info.Fields == nil {
			info.Fields = make(map[string]any)
		}
		info.Fields[name] = v
	}
	return info
}

func attributeInfo(a *asf.Attribute) models.AttributeInfo {
	info := models.AttributeInfo{
		Name:     a.Name,
		Type:     a.Type.String(),
		Value:    a.Value,
		Language: a.Language,
		Stream:   a.Stream,
	}
	if b, isBytes := a.Value.([]byte); isBytes {
		info.Value = fmt.Sprintf("%d bytes", len(b))
	}
	return info
}

// WriteTags applies the form fields to the uploaded file's tag and
// streams the rewritten file back.
func (h *TagHandler) WriteTags(c *gin.Context) {
	data, filename, ok := h.readUpload(c)
	if !ok {
		return
	}
	var req models.WriteRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: fmt.Sprintf("Invalid form fields: %v", err),
		})
		return
	}
	log := h.log.With().Str("file", filename).Logger()

	tmp, cleanup, err := spool(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to stage file: %v", err),
		})
		return
	}
	defer cleanup()

	var format string
	if isASF(data) {
		format = "ASF"
		err = h.writeASF(c, tmp, req)
	} else {
		format, err = h.writeID3(c, tmp, data, req)
	}
	if err != nil {
		log.Warn().Err(err).Msg("tag write failed")
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to write tags: %v", err),
		})
		return
	}

	out, err := os.ReadFile(tmp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to read result: %v", err),
		})
		return
	}
	log.Info().Str("format", format).Int("bytes", len(out)).Msg("wrote tags")
	c.Header("X-Tag-Format", format)
	streamFile(c, out, outputName(filename, "_tagged"))
}

func (h *TagHandler) writeASF(c *gin.Context, path string, req models.WriteRequest) error {
	f, err := asf.Load(path)
	if err != nil {
		return err
	}
	for field, attr := range asfAttrNames {
		if v := c.PostForm(field); v != "" {
			f.SetString(attr, v)
		}
	}
	for key, values := range c.Request.PostForm {
		if name, found := strings.CutPrefix(key, "attr:"); found && len(values) > 0 {
			f.SetString(name, values[0])
		}
	}
	return f.Save(path)
}

func (h *TagHandler) writeID3(c *gin.Context, path string, data []byte, req models.WriteRequest) (string, error) {
	tag, err := id3v2.Load(path)
	if err != nil {
		var hdrErr *id3v2.HeaderError
		if !errors.As(err, &hdrErr) {
			return "", err
		}
		tag = id3v2.NewTag()
		if v1, v1err := readTrailer(data); v1err == nil {
			tag = v1.ToID3v2()
		}
	}

	if req.Title != "" {
		tag.SetTitle(req.Title)
	}
	if req.Artist != "" {
		tag.SetArtists(strings.Split(req.Artist, "/")...)
	}
	if req.Album != "" {
		tag.SetAlbum(req.Album)
	}
	if req.Genre != "" {
		tag.SetGenre(req.Genre)
	}
	if req.Track != "" {
		tag.SetTrack(req.Track)
	}
	if req.Comment != "" {
		tag.SetComment("eng", "", req.Comment)
	}
	if req.Year != "" {
		ts, err := id3v2.ParseTimeStamp(req.Year)
		if err != nil {
			return "", fmt.Errorf("bad year %q: %w", req.Year, err)
		}
		tag.SetRecordingTime(ts)
	}
	for key, values := range c.Request.PostForm {
		id, found := strings.CutPrefix(key, "frame:")
		if !found {
			continue
		}
		if !id3v2.KnownTextFrame(id) {
			return "", fmt.Errorf("frame %q is not a writable text frame", id)
		}
		tag.Set(id3v2.NewTextFrame(id, values...))
	}
	if req.SetLength {
		info, err := probe.Detect(data)
		if err != nil {
			return "", fmt.Errorf("cannot probe duration: %w", err)
		}
		tag.Set(id3v2.NewTextFrame("TLEN", strconv.FormatInt(info.DurationMillis(), 10)))
	}

	opts := id3v2.SaveOptions{Padding: h.cfg.Padding}
	switch req.Version {
	case 0, 4:
	case 3:
		opts.Version = 3
	default:
		return "", fmt.Errorf("version must be 3 or 4, got %d", req.Version)
	}
	if err := tag.Save(path, opts); err != nil {
		return "", err
	}

	// A file that already carries an ID3v1 trailer gets it refreshed so
	// the two tags never disagree.
	if _, v1err := readTrailer(data); v1err == nil {
		if err := id3v1.FromID3v2(tag).Save(path); err != nil {
			return "", err
		}
	}

	version := byte(4)
	if opts.Version == 3 {
		version = 3
	}
	return fmt.Sprintf("ID3v2.%d.0", version), nil
}

// StripTags removes every tag the file carries and streams the bare
// file back.
func (h *TagHandler) StripTags(c *gin.Context) {
	data, filename, ok := h.readUpload(c)
	if !ok {
		return
	}
	log := h.log.With().Str("file", filename).Logger()

	tmp, cleanup, err := spool(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to stage file: %v", err),
		})
		return
	}
	defer cleanup()

	if isASF(data) {
		f, err := asf.Load(tmp)
		if err == nil {
			for _, a := range f.Attributes() {
				f.Delete(a.Name)
			}
			err = f.Save(tmp)
		}
		if err != nil {
			log.Warn().Err(err).Msg("ASF strip failed")
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Message: fmt.Sprintf("Failed to strip ASF metadata: %v", err),
			})
			return
		}
	} else {
		if err := id3v2.Delete(tmp); err != nil {
			log.Warn().Err(err).Msg("ID3v2 strip failed")
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Message: fmt.Sprintf("Failed to strip ID3v2 tag: %v", err),
			})
			return
		}
		if err := id3v1.Delete(tmp); err != nil {
			log.Warn().Err(err).Msg("ID3v1 strip failed")
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Message: fmt.Sprintf("Failed to strip ID3v1 tag: %v", err),
			})
			return
		}
	}

	out, err := os.ReadFile(tmp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: fmt.Sprintf("Failed to read result: %v", err),
		})
		return
	}
	log.Info().Int("bytes", len(out)).Msg("stripped tags")
	streamFile(c, out, outputName(filename, "_stripped"))
}

// spool writes data to a temp file so the in-place resize machinery can
// operate on it.
func spool(data []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "tagforge_*")
	if err != nil {
		return "", nil, err
	}
	path = f.Name()
	cleanup = func() { os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func outputName(filename, suffix string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filepath.Base(filename), ext) + suffix + ext
}

func streamFile(c *gin.Context, data []byte, filename string) {
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		contentType = "audio/mpeg"
	case ".wav":
		contentType = "audio/wav"
	case ".wma":
		contentType = "audio/x-ms-wma"
	}
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, contentType, data)
}
