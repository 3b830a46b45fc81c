// Package normalize turns whatever the analysis endpoint sent back into a
// single tagged model.AnalysisResponse. It knows nothing about transport.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/dharsanguruparan/lunashield/internal/model"
)

// MessageFields is the priority order used to pull a human-readable message
// out of an error body. The first non-empty field wins.
var MessageFields = []string{"error", "detail", "message"}

// NoteFields are checked inside the nested results object; any non-empty
// value turns the response into an informational note.
var NoteFields = []string{"note", "error_message"}

// fakeFrameFields covers both names the service has used for the fake count.
var fakeFrameFields = []string{"fake_frames", "deepfake_frames"}

// Normalize maps an HTTP status and raw body onto an AnalysisResponse. It never
// returns a raw parse error: unparseable bodies become synthetic failures.
func Normalize(status int, body []byte) model.AnalysisResponse {
	ok := status >= 200 && status < 300

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		if !ok {
			return model.Failure(fmt.Sprintf("Analysis failed: server error %d (non-JSON error response)", status))
		}
		return model.Failure("Analysis failed: invalid response from server")
	}

	if !ok {
		msg := ExtractMessage(payload)
		if msg == "" {
			msg = fmt.Sprintf("server error %d", status)
		}
		return model.Failure("Analysis failed: " + msg)
	}

	if success, present := payload["success"]; present && isFalse(success) {
		msg := ExtractMessage(payload)
		if msg == "" {
			msg = "analysis failed"
		}
		return model.Failure("Analysis failed: " + msg)
	}

	results, isObject := payload["results"].(map[string]any)
	if !isObject {
		return model.Failure("Analysis failed: response did not include analysis results")
	}

	for _, field := range NoteFields {
		if note, _ := results[field].(string); strings.TrimSpace(note) != "" {
			return model.Informational(strings.TrimSpace(note))
		}
	}

	return model.Success(resultFrom(results))
}

// ExtractMessage returns the first non-empty message found in MessageFields
// order, or "" when none is present.
func ExtractMessage(payload map[string]any) string {
	for _, field := range MessageFields {
		if msg := messageValue(payload[field]); msg != "" {
			return msg
		}
	}
	return ""
}

func resultFrom(results map[string]any) model.AnalysisResult {
	res := model.AnalysisResult{
		FileName:       stringField(results, "file_name"),
		Verdict:        model.ParseVerdict(stringField(results, "verdict")),
		FramesAnalyzed: intField(results, "frames_analyzed"),
		RealFrames:     intField(results, "real_frames"),
		TotalFrames:    intField(results, "total_frames"),
	}
	for _, field := range fakeFrameFields {
		if v := intField(results, field); v != nil {
			res.FakeFrames = v
			break
		}
	}
	if conf, ok := floatField(results, "confidence"); ok {
		res.Confidence = Clamp(conf)
	} else {
		res.ConfidenceMissing = true
	}
	if avg, ok := floatField(results, "average_confidence"); ok {
		clamped := Clamp(avg)
		res.AverageConfidence = &clamped
	}
	return res
}

// Clamp bounds a percentage to [0,100].
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func isFalse(v any) bool {
	b, err := cast.ToBoolE(v)
	return err == nil && !b
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(cast.ToString(v))
}

// intField returns a count, or nil when the value is absent, negative,
// non-finite or does not fit in an int.
func intField(m map[string]any, key string) *int {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// messageValue accepts plain strings and FastAPI-style validation lists
// ([{"loc": [...], "msg": "..."}]).
func messageValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			switch it := item.(type) {
			case map[string]any:
				if msg := stringField(it, "msg"); msg != "" {
					parts = append(parts, msg)
				}
			case string:
				if s := strings.TrimSpace(it); s != "" {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		for _, field := range MessageFields {
			if msg := messageValue(val[field]); msg != "" {
				return msg
			}
		}
		return ""
	default:
		return strings.TrimSpace(cast.ToString(val))
	}
}
