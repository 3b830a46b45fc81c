package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/lunashield/internal/admission"
	"github.com/dharsanguruparan/lunashield/internal/dashboard"
	"github.com/dharsanguruparan/lunashield/internal/model"
	"github.com/dharsanguruparan/lunashield/internal/view"
	"github.com/dharsanguruparan/lunashield/internal/workflow"
)

type pageData struct {
	Title       string
	Accept      string
	Limit       string
	NoSelection string
	Unreachable string
	Charts      []dashboard.Chart
}

// uploadReply is the JSON body of /upload for clients sending
// Accept: application/json.
type uploadReply struct {
	Validation *model.ValidationResult `json:"validation,omitempty"`
	Response   *model.AnalysisResponse `json:"response,omitempty"`
	State      model.UiState           `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "index", pageData{
		Title:       "Analyze",
		Accept:      strings.Join(s.opts.Policy.AllowedTypes, ","),
		Limit:       s.opts.Policy.LimitLabel(),
		NoSelection: workflow.MsgNoSelection,
		Unreachable: workflow.MsgUnreachable,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Dashboard"}
	for _, name := range dashboard.Names() {
		c, _ := dashboard.Lookup(name)
		data.Charts = append(data.Charts, c)
	}
	s.renderPage(w, "dashboard", data)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := dashboard.Render(chi.URLParam(r, "name"), &buf); err != nil {
		if errors.Is(err, dashboard.ErrUnknownChart) {
			http.NotFound(w, r)
			return
		}
		s.log.WithError(err).Error("chart render failed")
		http.Error(w, "chart unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(buf.Bytes())
}

// validateRequest mirrors what a browser file picker reports.
type validateRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// validateReply is the validation outcome plus, for accepted files, the
// selection label the page shows.
type validateReply struct {
	model.ValidationResult
	Label string `json:"label,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "expecting JSON body", http.StatusBadRequest)
		return
	}
	mediaType := req.Type
	if mediaType == "" {
		mediaType = admission.DetectMediaType(req.Name, nil)
	}
	file := model.NewSelectedFile(req.Name, req.Size, mediaType, nil)
	reply := validateReply{ValidationResult: s.opts.Policy.Check(file)}
	if reply.Accepted {
		reply.Label = view.FileLabel(file)
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("request_id", middleware.GetReqID(r.Context()))
	limit := s.opts.Policy.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(limit))
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondStatus(w, r, http.StatusBadRequest, "Upload must be a multipart form.")
		return
	}
	up, err := spoolUpload(mr, limit)
	if err != nil {
		log.WithError(err).Warn("reading upload failed")
		msg := "Could not read the uploaded file."
		if errors.Is(err, errMissingFile) {
			msg = workflow.MsgNoSelection
		}
		s.respondStatus(w, r, http.StatusBadRequest, msg)
		return
	}
	defer up.remove()

	v := &HTMLView{}
	wf := workflow.New(s.opts.Policy, s.opts.Analyzer, v, log)
	res := wf.SelectFile(up.file())
	if !res.Accepted {
		log.WithFields(logrus.Fields{"file": up.name, "reason": res.Reason}).Info("upload rejected")
		s.respondView(w, r, http.StatusUnprocessableEntity, v, uploadReply{Validation: &res, State: wf.State()})
		return
	}
	resp, err := wf.SubmitSelected(r.Context())
	if err != nil {
		// A fresh workflow is never busy and the file was already accepted.
		log.WithError(err).Error("submission refused")
		s.respondView(w, r, http.StatusInternalServerError, v, uploadReply{State: wf.State()})
		return
	}
	s.respondView(w, r, http.StatusOK, v, uploadReply{Validation: &res, Response: &resp, State: wf.State()})
}

func (s *Server) respondView(w http.ResponseWriter, r *http.Request, status int, v *HTMLView, reply uploadReply) {
	if wantsJSON(r) {
		respondJSON(w, status, reply)
		return
	}
	var buf bytes.Buffer
	if err := v.Render(&buf, s.tmpl); err != nil {
		s.log.WithError(err).Error("render fragment")
		http.Error(w, "Error rendering result", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) respondStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	v := &HTMLView{}
	v.SetStatus(msg, true)
	s.respondView(w, r, status, v, uploadReply{State: model.ShowingStatus(msg, true)})
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.WithError(err).WithField("page", name).Error("render page")
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// bodyLimit is the request body cap for an upload limit: the limit plus 1 MiB
// of form overhead, saturating instead of overflowing.
func bodyLimit(limit int64) int64 {
	const overhead = 1 << 20
	if limit > math.MaxInt64-overhead {
		return math.MaxInt64
	}
	return limit + overhead
}

var errMissingFile = errors.New("missing file part")

// spooledUpload is an upload copied to a temp file. At most limit+1 bytes are
// kept; truncated reports that the client sent more than that.
type spooledUpload struct {
	path      string
	name      string
	mediaType string
	size      int64
	truncated bool

	// sizeAtLeast is set when the upload was cut off and the browser did
	// not declare its real size.
	sizeAtLeast bool
}

func (u *spooledUpload) file() model.SelectedFile {
	f := model.NewSelectedFile(u.name, u.size, u.mediaType, func() (io.ReadCloser, error) {
		return os.Open(u.path)
	})
	f.SizeAtLeast = u.sizeAtLeast
	return f
}

func (u *spooledUpload) remove() { os.Remove(u.path) }

// spoolUpload reads the optional "size" field and the "file" part. The size
// field carries what the browser reported, so an upload cut off at limit+1
// still knows its real size.
func spoolUpload(mr *multipart.Reader, limit int64) (*spooledUpload, error) {
	var declared int64
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errMissingFile
		}
		if err != nil {
			return nil, err
		}
		switch part.FormName() {
		case "size":
			raw, _ := io.ReadAll(io.LimitReader(part, 32))
			declared, _ = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
			part.Close()
		case "file":
			if part.FileName() == "" {
				part.Close()
				return nil, errMissingFile
			}
			up, err := persistPart(part, limit)
			part.Close()
			if err != nil {
				return nil, err
			}
			if up.truncated {
				if declared > up.size {
					up.size = declared
				} else {
					up.sizeAtLeast = true
				}
			}
			return up, nil
		default:
			part.Close()
		}
	}
}

func persistPart(part *multipart.Part, limit int64) (*spooledUpload, error) {
	name := filepath.Base(part.FileName())
	tmp, err := os.CreateTemp("", "lunashield-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	truncated := false
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			if room := limit + 1 - written; int64(n) > room {
				n = int(room)
				truncated = true
			}
			if len(sniff) < 512 {
				chunk := min(n, 512-len(sniff))
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmp.Write(buf[:n]); err != nil {
				os.Remove(tmp.Name())
				return nil, fmt.Errorf("write temp file: %w", err)
			}
			written += int64(n)
		}
		if truncated || written > limit {
			truncated = true
			// Drain what the body limit still allows; errors past it are expected.
			io.Copy(io.Discard, part)
			break
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}

	mediaType := part.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = admission.DetectMediaType(name, sniff)
	}
	return &spooledUpload{
		path:      tmp.Name(),
		name:      name,
		mediaType: mediaType,
		size:      written,
		truncated: truncated,
	}, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("encode response")
	}
}
