// Package analysis talks to the remote deepfake analysis endpoint. One call to
// Analyze is exactly one multipart POST; there is no retry and no client-side
// timeout beyond the caller's context.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/lunashield/internal/model"
)

// DefaultFieldName is the multipart field the analysis service reads the video from.
const DefaultFieldName = "file"

// maxReplyBytes bounds how much of a reply body is buffered.
const maxReplyBytes = 4 << 20

// ErrUnreachable marks transport failures where the host could not be reached
// at all (refused connection, DNS failure, dial error).
var ErrUnreachable = errors.New("analysis server unreachable")

// Reply is the raw HTTP outcome handed to the normalizer.
type Reply struct {
	StatusCode int
	Body       []byte
	RequestID  string
}

// Client posts videos to the analysis endpoint.
type Client struct {
	endpoint   string
	fieldName  string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithFieldName overrides the multipart field name.
func WithFieldName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.fieldName = name
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient builds a Client for endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		fieldName: DefaultFieldName,
		// No Timeout: an upload runs until the transport settles or ctx ends.
		httpClient: &http.Client{},
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Analyze uploads file and returns the raw reply. Any non-nil error is a
// transport-level failure; HTTP error statuses come back as a Reply.
func (c *Client) Analyze(ctx context.Context, file model.SelectedFile) (*Reply, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer src.Close()
		part, err := mw.CreatePart(c.partHeader(file))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(fmt.Errorf("stream %s: %w", file.Name, err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	log := c.log.WithFields(logrus.Fields{"request_id": requestID, "file": file.Name, "size": file.Size})
	log.Debug("posting video for analysis")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return nil, classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	log.WithField("status", resp.StatusCode).Debug("analysis reply received")
	return &Reply{StatusCode: resp.StatusCode, Body: body, RequestID: requestID}, nil
}

func (c *Client) partHeader(file model.SelectedFile) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(c.fieldName), escapeQuotes(filepath.Base(file.Name))))
	contentType := file.MediaType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// classify wraps host-unreachable failures with ErrUnreachable so callers can
// show a connectivity message instead of the raw transport text.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("post analysis: %w", err)
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr):
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return fmt.Errorf("post analysis: %w", err)
}
