// Package workflow implements the upload-and-analyze state machine. It owns
// the selected file, enforces the admission policy before any network use,
// allows one in-flight submission at a time and drives a ViewPort through
// Idle -> Busy -> (result | status) -> ready again.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/lunashield/internal/admission"
	"github.com/dharsanguruparan/lunashield/internal/analysis"
	"github.com/dharsanguruparan/lunashield/internal/model"
	"github.com/dharsanguruparan/lunashield/internal/normalize"
)

var (
	// ErrBusy is returned when a submission is attempted while another is in flight.
	ErrBusy = errors.New("an analysis is already in progress")
	// ErrNoSelection is returned by SubmitSelected when no file has been accepted yet.
	ErrNoSelection = errors.New("no file selected")
)

// Messages shown for failures that never reach the normalizer.
const (
	MsgNoSelection = "Please select a video file first."
	MsgUnreachable = "Could not connect to the analysis server. Is it running?"
)

// RejectedError reports an admission failure. No request was sent.
type RejectedError struct {
	Result model.ValidationResult
}

func (e *RejectedError) Error() string {
	return "file rejected: " + e.Result.Message
}

// ViewPort is the display surface the workflow drives. Implementations must
// not call back into the workflow.
type ViewPort interface {
	SetSelection(file model.SelectedFile)
	SetStatus(message string, isError bool)
	SetResult(result model.AnalysisResult)
	SetBusy(busy bool)
	Reset()
}

// Analyzer performs the network round trip. *analysis.Client satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, file model.SelectedFile) (*analysis.Reply, error)
}

// Workflow is one upload surface: one selection, one display, one in-flight
// request at most.
type Workflow struct {
	policy   admission.Policy
	analyzer Analyzer
	view     ViewPort
	log      logrus.FieldLogger

	mu       sync.Mutex
	busy     bool
	selected *model.SelectedFile
	state    model.UiState
}

// New wires a Workflow.
func New(policy admission.Policy, analyzer Analyzer, view ViewPort, log logrus.FieldLogger) *Workflow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Workflow{
		policy:   policy,
		analyzer: analyzer,
		view:     view,
		log:      log,
		state:    model.Idle(),
	}
}

// State returns the active UI state.
func (w *Workflow) State() model.UiState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Busy reports whether a submission is in flight.
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Selected returns the stored selection, if any.
func (w *Workflow) Selected() (model.SelectedFile, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == nil {
		return model.SelectedFile{}, false
	}
	return *w.selected, true
}

// SelectFile validates file and updates the display. A rejected file leaves
// the previously stored selection untouched. Selecting while busy replaces the
// stored file but leaves the busy display alone.
func (w *Workflow) SelectFile(file model.SelectedFile) model.ValidationResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.policy.Check(file)
	if w.busy {
		if res.Accepted {
			f := file
			w.selected = &f
		}
		return res
	}

	w.view.Reset()
	if !res.Accepted {
		w.setStatusLocked(res.Message, true)
		return res
	}
	f := file
	w.selected = &f
	w.view.SetSelection(file)
	w.state = model.Idle()
	return res
}

// SubmitSelected submits the stored selection.
func (w *Workflow) SubmitSelected(ctx context.Context) (model.AnalysisResponse, error) {
	file, ok := w.Selected()
	if !ok {
		w.mu.Lock()
		if !w.busy {
			w.view.Reset()
			w.setStatusLocked(MsgNoSelection, true)
		}
		w.mu.Unlock()
		return model.AnalysisResponse{}, ErrNoSelection
	}
	return w.Submit(ctx, file)
}

// Submit uploads file and renders the outcome. The returned error is non-nil
// only when nothing was sent: ErrBusy or *RejectedError. Every transport,
// server or application failure is reported as a Failure or Informational
// response and rendered as a status.
func (w *Workflow) Submit(ctx context.Context, file model.SelectedFile) (model.AnalysisResponse, error) {
	if err := w.begin(file); err != nil {
		return model.AnalysisResponse{}, err
	}
	defer w.finish()

	resp := w.roundTrip(ctx, file)
	w.render(resp)
	return resp, nil
}

// begin moves the workflow into Busy or reports why it cannot.
func (w *Workflow) begin(file model.SelectedFile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.view.Reset()
	if res := w.policy.Check(file); !res.Accepted {
		w.setStatusLocked(res.Message, true)
		return &RejectedError{Result: res}
	}
	w.busy = true
	w.state = model.Busy()
	w.view.SetBusy(true)
	return nil
}

// finish runs on every exit path from Submit, panics included.
func (w *Workflow) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if w.state.Phase == model.PhaseBusy {
		w.state = model.Idle()
	}
	w.view.SetBusy(false)
}

// roundTrip is the single suspension point. Panics raised while talking to
// the server are turned into a Failure so the caller always gets a response.
func (w *Workflow) roundTrip(ctx context.Context, file model.SelectedFile) (resp model.AnalysisResponse) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("file", file.Name).Errorf("analysis panicked: %v", r)
			resp = model.Failure(fmt.Sprintf("Analysis failed: unexpected error (%v)", r))
		}
	}()

	reply, err := w.analyzer.Analyze(ctx, file)
	if err != nil {
		w.log.WithError(err).WithField("file", file.Name).Warn("analysis request failed")
		if errors.Is(err, analysis.ErrUnreachable) {
			return model.Failure(MsgUnreachable)
		}
		return model.Failure("Analysis failed: " + err.Error())
	}

	log := w.log.WithFields(logrus.Fields{"file": file.Name, "status": reply.StatusCode, "request_id": reply.RequestID})
	resp = normalize.Normalize(reply.StatusCode, reply.Body)
	switch resp.Kind {
	case model.KindSuccess:
		if resp.Result.ConfidenceMissing {
			log.Warn("analysis result has no usable confidence; showing 0%")
		}
		log.WithField("verdict", resp.Result.Verdict).Info("analysis complete")
	case model.KindInformational:
		log.WithField("note", resp.Message).Info("analysis returned a note")
	default:
		log.WithField("message", resp.Message).Warn("analysis failed")
	}
	return resp
}

func (w *Workflow) render(resp model.AnalysisResponse) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch resp.Kind {
	case model.KindSuccess:
		w.state = model.ShowingResult(*resp.Result)
		w.view.SetResult(*resp.Result)
	case model.KindInformational:
		w.setStatusLocked(resp.Message, false)
	default:
		w.setStatusLocked(resp.Message, true)
	}
}

func (w *Workflow) setStatusLocked(msg string, isError bool) {
	w.state = model.ShowingStatus(msg, isError)
	w.view.SetStatus(msg, isError)
}
