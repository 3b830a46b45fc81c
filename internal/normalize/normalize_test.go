package normalize

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dharsanguruparan/lunashield/internal/model"
)

func intp(n int) *int { return &n }

func floatp(f float64) *float64 { return &f }

func TestNormalizeSuccess(t *testing.T) {
	body := `{"success":true,"results":{"file_name":"a.mp4","verdict":"REAL","frames_analyzed":120,"real_frames":110,"fake_frames":10,"confidence":91.4}}`
	got := Normalize(200, []byte(body))
	want := model.Success(model.AnalysisResult{
		FileName:       "a.mp4",
		Verdict:        model.VerdictReal,
		FramesAnalyzed: intp(120),
		RealFrames:     intp(110),
		FakeFrames:     intp(10),
		Confidence:     91.4,
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected response (-want +got):\n%s", diff)
	}
}

func TestNormalizeSuccessOptionalFields(t *testing.T) {
	body := `{"success":true,"results":{"file_name":"b.avi","verdict":"fake","frames_analyzed":"10","real_frames":0,"deepfake_frames":10,"confidence":100,"total_frames":300,"average_confidence":87.25}}`
	got := Normalize(200, []byte(body))
	want := model.Success(model.AnalysisResult{
		FileName:          "b.avi",
		Verdict:           model.VerdictFake,
		FramesAnalyzed:    intp(10),
		RealFrames:        intp(0),
		FakeFrames:        intp(10),
		Confidence:        100,
		TotalFrames:       intp(300),
		AverageConfidence: floatp(87.25),
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected response (-want +got):\n%s", diff)
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	got := Normalize(200, []byte(`{"success":true,"results":{"verdict":"??"}}`))
	if got.Kind != model.KindSuccess {
		t.Fatalf("expected success, got %+v", got)
	}
	r := got.Result
	if r.Verdict != model.VerdictUnknown {
		t.Errorf("verdict = %q, want UNKNOWN", r.Verdict)
	}
	if r.FramesAnalyzed != nil || r.RealFrames != nil || r.FakeFrames != nil {
		t.Errorf("missing counts must stay nil, got %+v", r)
	}
	if !r.ConfidenceMissing || r.Confidence != 0 {
		t.Errorf("missing confidence should be 0 and flagged, got %v/%v", r.Confidence, r.ConfidenceMissing)
	}
}

func TestNormalizeRejectsImpossibleCounts(t *testing.T) {
	got := Normalize(200, []byte(`{"success":true,"results":{"verdict":"REAL","frames_analyzed":-3,"real_frames":1e20,"fake_frames":"lots","total_frames":"12"}}`))
	if got.Kind != model.KindSuccess {
		t.Fatalf("expected success, got %+v", got)
	}
	r := got.Result
	if r.FramesAnalyzed != nil || r.RealFrames != nil || r.FakeFrames != nil {
		t.Errorf("negative, oversized or non-numeric counts must be nil, got %+v", r)
	}
	if r.TotalFrames == nil || *r.TotalFrames != 12 {
		t.Errorf("numeric string count should coerce, got %v", r.TotalFrames)
	}
}

func TestNormalizeConfidenceClamp(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"150", 100},
		{"-5", 0},
		{"42.5", 42.5},
		{`"73.1"`, 73.1},
	}
	for _, tt := range tests {
		got := Normalize(200, []byte(`{"success":true,"results":{"verdict":"FAKE","confidence":`+tt.raw+`}}`))
		if got.Result == nil || got.Result.Confidence != tt.want {
			t.Errorf("confidence %s -> %+v, want %v", tt.raw, got.Result, tt.want)
		}
	}
}

func TestNormalizeConfidenceNaN(t *testing.T) {
	got := Normalize(200, []byte(`{"success":true,"results":{"verdict":"REAL","confidence":"NaN"}}`))
	if got.Result.Confidence != 0 || !got.Result.ConfidenceMissing {
		t.Fatalf("NaN confidence should be treated as missing, got %+v", got.Result)
	}
}

func TestNormalizeInformational(t *testing.T) {
	tests := []string{
		`{"success":true,"results":{"error_message":"no face detected"}}`,
		`{"success":true,"results":{"note":"no face detected","verdict":"REAL"}}`,
	}
	for _, body := range tests {
		got := Normalize(200, []byte(body))
		if diff := cmp.Diff(model.Informational("no face detected"), got); diff != "" {
			t.Errorf("body %s (-want +got):\n%s", body, diff)
		}
	}
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"detail", 500, `{"detail":"OOM"}`, "OOM"},
		{"error wins over detail", 503, `{"error":"model missing","detail":"ignored"}`, "model missing"},
		{"message only", 502, `{"message":"bad gateway"}`, "bad gateway"},
		{"empty error falls through", 500, `{"error":"","detail":"second"}`, "second"},
		{"fastapi validation", 422, `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`, "field required"},
		{"no message", 500, `{"success":false}`, "server error 500"},
		{"non-json error", 500, `<html>Internal Server Error</html>`, "server error 500"},
		{"empty error body", 504, ``, "server error 504"},
		{"success false", 200, `{"success":false,"error":"Unsupported file type (.webm)"}`, "Unsupported file type"},
		{"success false string", 200, `{"success":"false"}`, "analysis failed"},
		{"invalid 2xx body", 200, `not json`, "invalid response"},
		{"array body", 200, `[1,2,3]`, "invalid response"},
		{"missing results", 200, `{"success":true}`, "did not include analysis results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.status, []byte(tt.body))
			if got.Kind != model.KindFailure {
				t.Fatalf("expected failure, got %+v", got)
			}
			if !strings.Contains(got.Message, tt.contains) {
				t.Fatalf("message %q does not contain %q", got.Message, tt.contains)
			}
			if got.Result != nil {
				t.Fatalf("failure must not carry a result")
			}
		})
	}
}

func TestExtractMessagePriority(t *testing.T) {
	payload := map[string]any{"message": "third", "detail": "second", "error": "first"}
	if got := ExtractMessage(payload); got != "first" {
		t.Fatalf("ExtractMessage() = %q", got)
	}
	delete(payload, "error")
	if got := ExtractMessage(payload); got != "second" {
		t.Fatalf("ExtractMessage() = %q", got)
	}
	if got := ExtractMessage(map[string]any{}); got != "" {
		t.Fatalf("ExtractMessage(empty) = %q", got)
	}
}

func TestClamp(t *testing.T) {
	for in, want := range map[float64]float64{-0.1: 0, 0: 0, 55.5: 55.5, 100: 100, 1e9: 100} {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%v) = %v, want %v", in, got, want)
		}
	}
}
