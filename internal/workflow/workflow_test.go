package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/dharsanguruparan/lunashield/internal/admission"
	"github.com/dharsanguruparan/lunashield/internal/analysis"
	"github.com/dharsanguruparan/lunashield/internal/model"
	"github.com/dharsanguruparan/lunashield/internal/view"
)

// recorder is a headless ViewPort that logs every call in order.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	label  string
	status string
	isErr  bool
	result *model.AnalysisResult
	busy   bool
}

func (r *recorder) SetSelection(f model.SelectedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "selection")
	r.label = view.FileLabel(f)
}

func (r *recorder) SetStatus(msg string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("status(%t)", isError))
	r.status, r.isErr = msg, isError
}

func (r *recorder) SetResult(res model.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "result")
	r.result = &res
}

func (r *recorder) SetBusy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("busy(%t)", busy))
	r.busy = busy
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "reset")
	r.status, r.isErr, r.result, r.label = "", false, nil, ""
}

func (r *recorder) history() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// stubAnalyzer answers with a canned status/body and counts calls.
type stubAnalyzer struct {
	calls  int32
	status int
	body   string
	err    error
	block  chan struct{}
	panics bool
}

func (s *stubAnalyzer) Analyze(ctx context.Context, file model.SelectedFile) (*analysis.Reply, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		<-s.block
	}
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Reply{StatusCode: s.status, Body: []byte(s.body), RequestID: "req-1"}, nil
}

func video(name string, size int64) model.SelectedFile {
	return model.NewSelectedFile(name, size, "video/mp4", func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("data")), nil
	})
}

func quietLogger() logrus.FieldLogger {
	log, _ := logtest.NewNullLogger()
	return log
}

const successBody = `{"success":true,"results":{"file_name":"a.mp4","verdict":"REAL","frames_analyzed":120,"real_frames":110,"fake_frames":10,"confidence":91.4}}`

func TestSelectFileRejectsWithoutNetwork(t *testing.T) {
	an := &stubAnalyzer{status: 200, body: successBody}
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), an, rec, quietLogger())

	bad := model.NewSelectedFile("notes.txt", 10, "text/plain", nil)
	res := wf.SelectFile(bad)
	if res.Accepted || res.Reason != model.RejectUnsupportedType {
		t.Fatalf("expected unsupported type rejection, got %+v", res)
	}
	if !rec.isErr || rec.status == "" {
		t.Fatalf("expected error status, got %q (%v)", rec.status, rec.isErr)
	}
	if _, ok := wf.Selected(); ok {
		t.Fatalf("rejected file must not be stored")
	}
	if atomic.LoadInt32(&an.calls) != 0 {
		t.Fatalf("selectFile must not touch the network")
	}
}

func TestSelectFileKeepsPreviousSelectionOnReject(t *testing.T) {
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), &stubAnalyzer{}, rec, quietLogger())

	good := video("good.mp4", 1024)
	if res := wf.SelectFile(good); !res.Accepted {
		t.Fatalf("expected accept, got %+v", res)
	}
	res := wf.SelectFile(video("huge.mp4", 52428801))
	if res.Reason != model.RejectTooLarge || !strings.Contains(res.Message, "50 MB") {
		t.Fatalf("expected too-large rejection naming the limit, got %+v", res)
	}
	stored, ok := wf.Selected()
	if !ok || stored.Name != "good.mp4" {
		t.Fatalf("previous selection lost: %+v", stored)
	}
	if wf.State().Phase != model.PhaseShowingStatus || !wf.State().IsError {
		t.Fatalf("expected error status state, got %+v", wf.State())
	}
}

func TestSelectFileIdempotent(t *testing.T) {
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), &stubAnalyzer{}, rec, quietLogger())
	f := video("clip.mp4", 2048)

	first := wf.SelectFile(f)
	firstLabel := rec.label
	second := wf.SelectFile(f)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("validation differs (-first +second):\n%s", diff)
	}
	if rec.label != firstLabel || firstLabel == "" {
		t.Fatalf("label changed: %q vs %q", firstLabel, rec.label)
	}
}

func TestSelectFileClearsPreviousResult(t *testing.T) {
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), &stubAnalyzer{status: 200, body: successBody}, rec, quietLogger())
	if _, err := wf.Submit(context.Background(), video("a.mp4", 10)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.result == nil {
		t.Fatalf("expected result to be shown")
	}
	wf.SelectFile(video("b.mp4", 10))
	if rec.result != nil || rec.status != "" {
		t.Fatalf("new selection must clear previous result/status")
	}
	if wf.State().Phase != model.PhaseIdle {
		t.Fatalf("expected idle, got %q", wf.State().Phase)
	}
}

func TestSubmitSuccess(t *testing.T) {
	an := &stubAnalyzer{status: 200, body: successBody}
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), an, rec, quietLogger())

	resp, err := wf.Submit(context.Background(), video("a.mp4", 1024))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Kind != model.KindSuccess {
		t.Fatalf("expected success, got %+v", resp)
	}
	want := []string{"reset", "busy(true)", "result", "busy(false)"}
	if diff := cmp.Diff(want, rec.history()); diff != "" {
		t.Fatalf("unexpected view calls (-want +got):\n%s", diff)
	}
	r := rec.result
	if r.Verdict != model.VerdictReal || view.FormatCount(r.FramesAnalyzed) != "120" {
		t.Fatalf("unexpected result %+v", r)
	}
	if view.FormatConfidence(r.Confidence) != "91%" || view.ConfidenceLevel(r.Confidence) != view.ClassHighConfidence {
		t.Fatalf("unexpected confidence rendering for %v", r.Confidence)
	}
	if wf.Busy() {
		t.Fatalf("busy must be cleared")
	}
	if wf.State().Phase != model.PhaseShowingResult {
		t.Fatalf("expected result phase, got %q", wf.State().Phase)
	}
}

func TestSubmitOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		an       *stubAnalyzer
		kind     model.ResponseKind
		isError  bool
		contains string
	}{
		{"informational", &stubAnalyzer{status: 200, body: `{"success":true,"results":{"error_message":"no face detected"}}`}, model.KindInformational, false, "no face detected"},
		{"server detail", &stubAnalyzer{status: 500, body: `{"detail":"OOM"}`}, model.KindFailure, true, "OOM"},
		{"server non-json", &stubAnalyzer{status: 500, body: `Internal Server Error`}, model.KindFailure, true, "server error 500"},
		{"application failure", &stubAnalyzer{status: 200, body: `{"success":false,"error":"Unsupported file type (.webm)"}`}, model.KindFailure, true, "Unsupported file type"},
		{"unreachable", &stubAnalyzer{err: fmt.Errorf("%w: dial tcp: connection refused", analysis.ErrUnreachable)}, model.KindFailure, true, MsgUnreachable},
		{"other transport", &stubAnalyzer{err: errors.New("tls: handshake failure")}, model.KindFailure, true, "tls: handshake failure"},
		{"panic", &stubAnalyzer{panics: true}, model.KindFailure, true, "unexpected error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			wf := New(admission.DefaultPolicy(), tt.an, rec, quietLogger())
			resp, err := wf.Submit(context.Background(), video("a.mp4", 1024))
			if err != nil {
				t.Fatalf("failures must come back as responses, got error %v", err)
			}
			if resp.Kind != tt.kind {
				t.Fatalf("kind = %q, want %q", resp.Kind, tt.kind)
			}
			if rec.result != nil {
				t.Fatalf("result panel must stay hidden")
			}
			if rec.isErr != tt.isError || !strings.Contains(rec.status, tt.contains) {
				t.Fatalf("status = %q (error=%v), want %q (error=%v)", rec.status, rec.isErr, tt.contains, tt.isError)
			}
			if wf.Busy() || rec.busy {
				t.Fatalf("busy state must be cleared on every exit path")
			}
			calls := rec.history()
			if calls[len(calls)-1] != "busy(false)" {
				t.Fatalf("trigger must be re-enabled last, got %v", calls)
			}
		})
	}
}

func TestSubmitRejectedMakesNoRequest(t *testing.T) {
	an := &stubAnalyzer{status: 200, body: successBody}
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), an, rec, quietLogger())

	_, err := wf.Submit(context.Background(), video("huge.mp4", 52428801))
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Result.Reason != model.RejectTooLarge {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if atomic.LoadInt32(&an.calls) != 0 {
		t.Fatalf("no request may be sent for a rejected file")
	}
	for _, c := range rec.history() {
		if c == "busy(true)" {
			t.Fatalf("rejected submission must not enter busy")
		}
	}
}

func TestSubmitWhileBusyIsNoop(t *testing.T) {
	an := &stubAnalyzer{status: 200, body: successBody, block: make(chan struct{})}
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), an, rec, quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := wf.Submit(context.Background(), video("a.mp4", 10))
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !wf.Busy() {
		if time.Now().After(deadline) {
			t.Fatalf("workflow never became busy")
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec.clear()

	if _, err := wf.Submit(context.Background(), video("b.mp4", 10)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(rec.history()) != 0 {
		t.Fatalf("busy submission must not touch the view, got %v", rec.history())
	}

	close(an.block)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if got := atomic.LoadInt32(&an.calls); got != 1 {
		t.Fatalf("expected one request, got %d", got)
	}
}

func TestSubmitRecoversAfterFailure(t *testing.T) {
	an := &stubAnalyzer{status: 500, body: `{"detail":"OOM"}`}
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), an, rec, quietLogger())

	if resp, _ := wf.Submit(context.Background(), video("a.mp4", 10)); resp.Kind != model.KindFailure {
		t.Fatalf("expected failure first, got %+v", resp)
	}
	an.status, an.body = 200, `{"success":true,"results":{"error_message":"no face detected"}}`
	if resp, _ := wf.Submit(context.Background(), video("a.mp4", 10)); resp.Kind != model.KindInformational {
		t.Fatalf("expected informational second, got %+v", resp)
	}
	an.body = successBody
	resp, err := wf.Submit(context.Background(), video("a.mp4", 10))
	if err != nil || resp.Kind != model.KindSuccess {
		t.Fatalf("expected success after failures, got %+v / %v", resp, err)
	}
}

func TestSubmitSelected(t *testing.T) {
	an := &stubAnalyzer{status: 200, body: successBody}
	rec := &recorder{}
	wf := New(admission.DefaultPolicy(), an, rec, quietLogger())

	if _, err := wf.SubmitSelected(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if rec.status != MsgNoSelection || !rec.isErr {
		t.Fatalf("expected no-selection status, got %q", rec.status)
	}

	wf.SelectFile(video("a.mp4", 10))
	resp, err := wf.SubmitSelected(context.Background())
	if err != nil || resp.Kind != model.KindSuccess {
		t.Fatalf("SubmitSelected: %+v / %v", resp, err)
	}
}

func TestConfidenceClampedEndToEnd(t *testing.T) {
	for raw, want := range map[string]string{"150": "100%", "-5": "0%"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"success":true,"results":{"verdict":"FAKE","confidence":`+raw+`}}`)
		}))
		rec := &recorder{}
		wf := New(admission.DefaultPolicy(), analysis.NewClient(srv.URL), rec, quietLogger())
		if _, err := wf.Submit(context.Background(), video("a.mp4", 10)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		srv.Close()
		if rec.result == nil {
			t.Fatalf("expected result for confidence %s", raw)
		}
		if got := view.FormatConfidence(rec.result.Confidence); got != want {
			t.Errorf("confidence %s rendered as %q, want %q", raw, got, want)
		}
	}
}

func TestMissingConfidenceIsLogged(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	an := &stubAnalyzer{status: 200, body: `{"success":true,"results":{"verdict":"REAL"}}`}
	wf := New(admission.DefaultPolicy(), an, &recorder{}, log)
	if _, err := wf.Submit(context.Background(), video("a.mp4", 10)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "confidence") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a data-quality warning")
	}
}
