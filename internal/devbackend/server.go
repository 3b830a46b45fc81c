// Package devbackend is a local stand-in for the analysis service. It speaks
// the same wire contract as the real endpoint (multipart field "file", JSON
// envelope with success/results/error) but derives its predictions from a hash
// of the upload instead of running a model.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultFrames is how many frames are sampled per upload.
const DefaultFrames = 10

// AllowedExtensions mirrors the real service's server-side allow-list.
var AllowedExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

const (
	msgUnavailable  = "Analysis service is temporarily unavailable (Model not loaded). Please try again later or contact support."
	msgNotByID      = "Result retrieval by ID is not implemented."
	msgInternal     = "An unexpected internal server error occurred."
	msgMissingField = "missing file part"
)

// Options configures a Server.
type Options struct {
	Address     string
	Frames      int
	MaxBytes    int64
	Unavailable bool
	Log         logrus.FieldLogger
}

// Server hosts the stand-in /analyze endpoint.
type Server struct {
	opts   Options
	log    logrus.FieldLogger
	tmpDir string
}

// New builds a Server. Uploads are spooled under os.TempDir().
func New(opts Options) (*Server, error) {
	if opts.Frames <= 0 {
		opts.Frames = DefaultFrames
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	dir := filepath.Join(os.TempDir(), "lunashield-devbackend")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Server{opts: opts, log: log, tmpDir: dir}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/results/", s.handleResult)
	return mux
}

// Run serves until ctx is cancelled, then shuts down with a 5s grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.WithFields(logrus.Fields{"address": s.opts.Address, "unavailable": s.opts.Unavailable}).Info("dev analysis backend listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.opts.Unavailable {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": status, "model_loaded": !s.opts.Unavailable})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/results/")
	s.log.WithField("result_id", id).Warn("result lookup requested")
	respondJSON(w, http.StatusNotFound, map[string]string{"error": msgNotByID})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Unavailable {
		s.log.Error("analysis requested while the model is unavailable")
		fail(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		detail(w, http.StatusUnprocessableEntity, "expecting multipart form")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		detail(w, http.StatusUnprocessableEntity, msgMissingField)
		return
	}
	defer part.Close()

	name := filepath.Base(part.FileName())
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtension(ext) {
		s.log.WithFields(logrus.Fields{"file": name, "content_type": part.Header.Get("Content-Type")}).Warn("unsupported file type rejected")
		fail(w, http.StatusBadRequest, fmt.Sprintf("Unsupported file type (%s). Please upload MP4, AVI, MOV, or MKV.", ext))
		return
	}

	log := s.log.WithFields(logrus.Fields{"file": name, "request_id": r.Header.Get("X-Request-ID")})
	tmp, err := s.persistPart(part, ext)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, errTooLarge) {
			fail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d MB limit.", s.opts.MaxBytes>>20))
			return
		}
		log.WithError(err).Error("saving upload failed")
		fail(w, http.StatusInternalServerError, msgInternal)
		return
	}
	defer func() {
		tmp.f.Close()
		if err := os.Remove(tmp.path); err != nil {
			log.WithError(err).Error("removing upload failed")
		}
	}()

	start := time.Now()
	report, err := classify(name, tmp.size, tmp.f, s.opts.Frames)
	if err != nil {
		log.WithError(err).Error("analysis failed")
		fail(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
		return
	}
	log = log.WithFields(logrus.Fields{"verdict": report.Verdict, "frames": report.FramesAnalyzed, "took": time.Since(start)})
	if report.ErrorMessage != "" {
		log.WithField("message", report.ErrorMessage).Warn("analysis completed with a note")
	} else {
		log.Info("analysis complete")
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "results": report})
}

var errTooLarge = errors.New("file exceeds limit")

type tempUpload struct {
	f    *os.File
	path string
	size int64
}

// persistPart streams part into a temp file, enforcing MaxBytes, and returns
// the file rewound to the start.
func (s *Server) persistPart(part *multipart.Part, ext string) (*tempUpload, error) {
	path := filepath.Join(s.tmpDir, uuid.NewString()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		dst.Close()
		os.Remove(path)
	}
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.opts.MaxBytes {
				cleanup()
				return nil, errTooLarge
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				cleanup()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			cleanup()
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return &tempUpload{f: dst, path: path, size: written}, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func allowedExtension(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

func fail(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "error": msg})
}

// detail mimics the framework-generated validation errors of the real service.
func detail(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"detail": []map[string]any{
		{"loc": []string{"body", "file"}, "msg": msg, "type": "value_error"},
	}})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("encode response")
	}
}
