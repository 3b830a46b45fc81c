package web

import (
	"html/template"
	"io"

	"github.com/dharsanguruparan/lunashield/internal/model"
	"github.com/dharsanguruparan/lunashield/internal/view"
)

// revealDelayMS is how long the page waits before scrolling the result panel
// into view.
const revealDelayMS = 100

// HTMLView is a ViewPort that remembers the last state pushed to it and
// renders it as an HTML fragment. One HTMLView serves one request.
type HTMLView struct {
	Label   string
	Status  string
	IsError bool
	Result  *model.AnalysisResult
	Busy    bool
}

func (v *HTMLView) SetSelection(file model.SelectedFile) { v.Label = view.FileLabel(file) }

func (v *HTMLView) SetStatus(message string, isError bool) {
	v.Status, v.IsError = message, isError
	v.Result = nil
}

func (v *HTMLView) SetResult(result model.AnalysisResult) {
	r := result
	v.Result = &r
	v.Status, v.IsError = "", false
}

func (v *HTMLView) SetBusy(busy bool) { v.Busy = busy }

func (v *HTMLView) Reset() {
	v.Status, v.IsError, v.Result = "", false, nil
}

// resultData is the template model for the result panel.
type resultData struct {
	FileName          string
	Verdict           string
	VerdictClass      string
	FramesAnalyzed    string
	RealFrames        string
	FakeFrames        string
	Confidence        string
	ConfidenceClass   string
	TotalFrames       string
	AverageConfidence string
	RevealDelay       int
}

type fragmentData struct {
	Label   string
	Status  string
	IsError bool
	Result  *resultData
}

func (v *HTMLView) data() fragmentData {
	d := fragmentData{Label: v.Label, Status: v.Status, IsError: v.IsError}
	if v.Result == nil {
		return d
	}
	r := v.Result
	rd := &resultData{
		FileName:        r.FileName,
		Verdict:         string(model.ParseVerdict(string(r.Verdict))),
		VerdictClass:    view.VerdictClass(r.Verdict),
		FramesAnalyzed:  view.FormatCount(r.FramesAnalyzed),
		RealFrames:      view.FormatCount(r.RealFrames),
		FakeFrames:      view.FormatCount(r.FakeFrames),
		Confidence:      view.FormatConfidence(r.Confidence),
		ConfidenceClass: view.ConfidenceLevel(r.Confidence),
		RevealDelay:     revealDelayMS,
	}
	if rd.FileName == "" {
		rd.FileName = view.NotAvailable
	}
	if r.TotalFrames != nil {
		rd.TotalFrames = view.FormatCount(r.TotalFrames)
	}
	if r.AverageConfidence != nil {
		rd.AverageConfidence = view.FormatConfidence(*r.AverageConfidence)
	}
	d.Result = rd
	return d
}

// Render writes the fragment for the current state.
func (v *HTMLView) Render(w io.Writer, tmpl *template.Template) error {
	return tmpl.ExecuteTemplate(w, "fragment", v.data())
}
