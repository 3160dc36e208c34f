package fmtware

import (
	"encoding/hex"
	"mime"
	"net/http"
	"strconv"

	"github.com/zeebo/blake3"
)

// fileDefaults are the settings every downloadable plugin starts from.
func fileDefaults(filename string) Settings {
	return Settings{
		"filename": filename,
		"download": true,
		"passthru": false,
	}
}

// emit finishes a transform for plugin id. In buffered mode the body is
// passed through; otherwise it is written with the handler's status, its
// content type, an ETag, and an attachment disposition when the plugin is
// configured to download.
func emit(call *Call, id, contentType string, body []byte) Result {
	s := call.Settings
	if s.Bool(id+".passthru", false) {
		return PassThrough(body)
	}

	w := call.Response
	h := w.Header()
	h.Set("Content-Type", contentType)
	if s.Bool(id+".download", false) {
		if name := Filename(s, id); name != "" {
			h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		}
	}
	tag := etag(body)
	h.Set("ETag", tag)

	status := responseStatus(call.Request)
	if status == http.StatusOK && call.Request != nil && call.Request.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return Emit()
	}

	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		return Fail(err)
	}
	return Emit()
}

// Filename returns the download name for plugin id: the shared "filename"
// setting when set, else the plugin's own.
func Filename(s Settings, id string) string {
	if name := s.String("filename", ""); name != "" {
		return name
	}
	return s.String(id+".filename", "")
}

func etag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
