// Package model contains the value types shared by the upload workflow, the
// normalizer and every view that renders them.
package model

import (
	"io"
	"strings"
)

// SelectedFile is the candidate upload. A new selection replaces the previous
// one wholesale; the workflow never merges two selections.
type SelectedFile struct {
	Name      string
	Size      int64
	MediaType string
	// SizeAtLeast marks Size as a lower bound: the bytes were cut off before
	// the end and the real size is unknown.
	SizeAtLeast bool
	open        func() (io.ReadCloser, error)
}

// NewSelectedFile builds a SelectedFile whose bytes are produced by open.
func NewSelectedFile(name string, size int64, mediaType string, open func() (io.ReadCloser, error)) SelectedFile {
	return SelectedFile{Name: name, Size: size, MediaType: mediaType, open: open}
}

// Open returns a fresh reader over the file contents.
func (f SelectedFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, ErrNoContent
	}
	return f.open()
}

// RejectReason explains why the admission policy refused a file.
type RejectReason string

const (
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectTooLarge        RejectReason = "too_large"
	RejectEmpty           RejectReason = "empty"
)

// ValidationResult is the outcome of checking a SelectedFile against policy.
type ValidationResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Accept is the zero-reason accepted result.
func Accept() ValidationResult {
	return ValidationResult{Accepted: true}
}

// Reject builds a rejected result.
func Reject(reason RejectReason, msg string) ValidationResult {
	return ValidationResult{Reason: reason, Message: msg}
}

// Verdict is the enumerated label returned by the analysis service.
type Verdict string

const (
	VerdictReal    Verdict = "REAL"
	VerdictFake    Verdict = "FAKE"
	VerdictUnknown Verdict = "UNKNOWN"
)

// ParseVerdict maps any server value onto the enumeration. Absent or
// unrecognized values become VerdictUnknown.
func ParseVerdict(s string) Verdict {
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case VerdictReal:
		return VerdictReal
	case VerdictFake:
		return VerdictFake
	default:
		return VerdictUnknown
	}
}

// AnalysisResult is the normalized payload of a successful analysis. Counts
// are pointers because 0 is a valid count and must not be confused with a
// field the server left out.
type AnalysisResult struct {
	FileName          string   `json:"file_name"`
	Verdict           Verdict  `json:"verdict"`
	FramesAnalyzed    *int     `json:"frames_analyzed"`
	RealFrames        *int     `json:"real_frames"`
	FakeFrames        *int     `json:"fake_frames"`
	Confidence        float64  `json:"confidence"`
	ConfidenceMissing bool     `json:"confidence_missing,omitempty"`
	TotalFrames       *int     `json:"total_frames,omitempty"`
	AverageConfidence *float64 `json:"average_confidence,omitempty"`
}

// ResponseKind tags an AnalysisResponse.
type ResponseKind string

const (
	KindSuccess       ResponseKind = "success"
	KindFailure       ResponseKind = "failure"
	KindInformational ResponseKind = "informational"
)

// AnalysisResponse is the tagged outcome of one submission. Result is set only
// for KindSuccess; Message only for the other kinds.
type AnalysisResponse struct {
	Kind    ResponseKind    `json:"kind"`
	Result  *AnalysisResult `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Success wraps a normalized result.
func Success(r AnalysisResult) AnalysisResponse {
	return AnalysisResponse{Kind: KindSuccess, Result: &r}
}

// Failure wraps an error message meant for the user.
func Failure(msg string) AnalysisResponse {
	return AnalysisResponse{Kind: KindFailure, Message: msg}
}

// Informational wraps a soft warning such as "no faces detected".
func Informational(note string) AnalysisResponse {
	return AnalysisResponse{Kind: KindInformational, Message: note}
}
