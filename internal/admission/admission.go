// Package admission holds the client-side checks a file must pass before any
// network use: an allow-list of video media types and a size ceiling.
package admission

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dharsanguruparan/lunashield/internal/model"
)

// DefaultMaxBytes is the default upload ceiling (50 MiB).
const DefaultMaxBytes int64 = 50 << 20

// DefaultAllowedTypes lists the video media types the analysis service accepts.
// "video/avi" is the alternate string some platforms report for .avi files.
var DefaultAllowedTypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/avi",
}

// Policy is the admission policy applied to every selection and submission.
type Policy struct {
	AllowedTypes []string
	MaxBytes     int64
}

// DefaultPolicy returns the stock allow-list and 50 MiB ceiling.
func DefaultPolicy() Policy {
	types := make([]string, len(DefaultAllowedTypes))
	copy(types, DefaultAllowedTypes)
	return Policy{AllowedTypes: types, MaxBytes: DefaultMaxBytes}
}

// Check validates file against the policy. It never touches the network.
func (p Policy) Check(file model.SelectedFile) model.ValidationResult {
	if !p.Allowed(file.MediaType) {
		shown := file.MediaType
		if shown == "" {
			shown = "unknown type"
		}
		return model.Reject(model.RejectUnsupportedType,
			fmt.Sprintf("Unsupported file type (%s). Please upload an MP4, MOV or AVI video.", shown))
	}
	if file.Size > p.maxBytes() && file.SizeAtLeast {
		return model.Reject(model.RejectTooLarge,
			fmt.Sprintf("File is larger than the maximum size of %s.", p.LimitLabel()))
	}
	if file.Size > p.maxBytes() {
		return model.Reject(model.RejectTooLarge,
			fmt.Sprintf("File is too large (%s bytes). Maximum size is %s.", humanize.Comma(file.Size), p.LimitLabel()))
	}
	if file.Size <= 0 {
		return model.Reject(model.RejectEmpty, "The selected file is empty.")
	}
	return model.Accept()
}

// Allowed reports whether mediaType is on the allow-list. Comparison ignores
// case and MIME parameters.
func (p Policy) Allowed(mediaType string) bool {
	mt := normalizeType(mediaType)
	if mt == "" {
		return false
	}
	for _, allowed := range p.AllowedTypes {
		if normalizeType(allowed) == mt {
			return true
		}
	}
	return false
}

// LimitLabel renders the size ceiling for messages, e.g. "50 MB".
func (p Policy) LimitLabel() string {
	limit := p.maxBytes()
	if limit%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", limit>>20)
	}
	return humanize.IBytes(uint64(limit))
}

func (p Policy) maxBytes() int64 {
	if p.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return p.MaxBytes
}

func normalizeType(mediaType string) string {
	mt := strings.TrimSpace(mediaType)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(mt)
}

var extensionTypes = map[string]string{
	".mp4": "video/mp4",
	".m4v": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",
	".mkv": "video/x-matroska",
}

// DetectMediaType guesses the declared media type the way a browser file
// picker would: by extension first, then the system MIME table, then by
// sniffing the first bytes of content.
func DetectMediaType(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return normalizeType(mt)
		}
	}
	if len(head) == 0 {
		return ""
	}
	return normalizeType(http.DetectContentType(head))
}
