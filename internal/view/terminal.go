package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dharsanguruparan/lunashield/internal/model"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	busyStyle  = lipgloss.NewStyle().Faint(true)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	verdictStyles = map[string]lipgloss.Style{
		"verdict-real":    lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		"verdict-fake":    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		"verdict-unknown": lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true),
	}
	confidenceStyles = map[string]lipgloss.Style{
		ClassHighConfidence:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		ClassMediumConfidence: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		ClassLowConfidence:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// Terminal is a ViewPort that prints to a writer, one line or panel per
// state change. The terminal scrolls on its own, so there is no reveal step.
type Terminal struct {
	out   io.Writer
	state model.UiState
}

// NewTerminal builds a terminal ViewPort writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, state: model.Idle()}
}

// State returns what the terminal last rendered.
func (t *Terminal) State() model.UiState { return t.state }

// SetSelection prints the selected file label.
func (t *Terminal) SetSelection(file model.SelectedFile) {
	fmt.Fprintf(t.out, "%s %s\n", labelStyle.Render("Selected:"), FileLabel(file))
}

// SetStatus prints a status banner.
func (t *Terminal) SetStatus(message string, isError bool) {
	t.state = model.ShowingStatus(message, isError)
	if isError {
		fmt.Fprintln(t.out, errorStyle.Render("Error: ")+message)
		return
	}
	fmt.Fprintln(t.out, infoStyle.Render("Note: ")+message)
}

// SetResult prints the result panel.
func (t *Terminal) SetResult(r model.AnalysisResult) {
	t.state = model.ShowingResult(r)
	fmt.Fprintln(t.out, panelStyle.Render(RenderResult(r)))
}

// SetBusy prints a progress line when a request starts.
func (t *Terminal) SetBusy(busy bool) {
	if busy {
		t.state = model.Busy()
		fmt.Fprintln(t.out, busyStyle.Render("Analyzing video, this may take a moment..."))
	}
}

// Reset clears the remembered state. Lines already printed stay on screen.
func (t *Terminal) Reset() {
	t.state = model.Idle()
}

// RenderResult formats a result as plain labelled rows with verdict and
// confidence styling applied.
func RenderResult(r model.AnalysisResult) string {
	verdictClass := VerdictClass(r.Verdict)
	confClass := ConfidenceLevel(r.Confidence)
	name := r.FileName
	if name == "" {
		name = NotAvailable
	}
	confidence := FormatConfidence(r.Confidence)

	rows := [][2]string{
		{"File", name},
		{"Verdict", verdictStyles[verdictClass].Render(string(model.ParseVerdict(string(r.Verdict))))},
		{"Frames analyzed", FormatCount(r.FramesAnalyzed)},
		{"Real frames", FormatCount(r.RealFrames)},
		{"Fake frames", FormatCount(r.FakeFrames)},
		{"Confidence", confidenceStyles[confClass].Render(confidence)},
	}
	if r.TotalFrames != nil {
		rows = append(rows, [2]string{"Total frames", FormatCount(r.TotalFrames)})
	}
	if r.AverageConfidence != nil {
		rows = append(rows, [2]string{"Avg frame confidence", FormatConfidence(*r.AverageConfidence)})
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-21s %s", row[0]+":", row[1])
	}
	return b.String()
}
