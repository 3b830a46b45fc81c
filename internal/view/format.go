// Package view holds presentation helpers shared by every ViewPort plus the
// terminal ViewPort used by the CLI. Helpers are pure so both the terminal and
// HTML renderings stay in step.
package view

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dharsanguruparan/lunashield/internal/model"
)

// HighConfidence and MediumConfidence are the lower bounds of the confidence bands.
const (
	HighConfidence   = 70
	MediumConfidence = 40
)

// Confidence band classes.
const (
	ClassHighConfidence   = "high-confidence"
	ClassMediumConfidence = "medium-confidence"
	ClassLowConfidence    = "low-confidence"
)

// NotAvailable is shown for counts the server left out.
const NotAvailable = "N/A"

// FormatCount renders a count, or N/A when the server omitted it. Zero is a
// real count and is shown as "0".
func FormatCount(n *int) string {
	if n == nil {
		return NotAvailable
	}
	return strconv.Itoa(*n)
}

// ConfidencePercent clamps v to [0,100] and rounds it to a whole percent.
func ConfidencePercent(v float64) int {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 100:
		return 100
	}
	return int(math.Round(v))
}

// FormatConfidence renders v as "91%".
func FormatConfidence(v float64) string {
	return fmt.Sprintf("%d%%", ConfidencePercent(v))
}

// ConfidenceLevel picks the band class for v.
func ConfidenceLevel(v float64) string {
	p := ConfidencePercent(v)
	switch {
	case p >= HighConfidence:
		return ClassHighConfidence
	case p >= MediumConfidence:
		return ClassMediumConfidence
	default:
		return ClassLowConfidence
	}
}

// VerdictClass derives the verdict style class. Unknown or empty verdicts
// fall back to the UNKNOWN class.
func VerdictClass(v model.Verdict) string {
	return "verdict-" + strings.ToLower(string(model.ParseVerdict(string(v))))
}

// FileLabel renders the selection label: name, size and declared type.
func FileLabel(f model.SelectedFile) string {
	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = "unknown type"
	}
	return fmt.Sprintf("%s (%s, %s)", f.Name, humanize.IBytes(uint64(max(f.Size, 0))), mediaType)
}
