package model

import "errors"

// ErrNoContent is returned by SelectedFile.Open when the file carries no byte source.
var ErrNoContent = errors.New("selected file has no content source")

// Phase names the active UI state. Exactly one is active at a time.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseBusy          Phase = "busy"
	PhaseShowingResult Phase = "showing_result"
	PhaseShowingStatus Phase = "showing_status"
)

// UiState is what the display surface currently shows. Only the workflow
// moves it between phases.
type UiState struct {
	Phase   Phase           `json:"phase"`
	Result  *AnalysisResult `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// Idle is the state shown before and between uploads.
func Idle() UiState { return UiState{Phase: PhaseIdle} }

// Busy is the state while a request is in flight.
func Busy() UiState { return UiState{Phase: PhaseBusy} }

// ShowingResult renders a successful analysis.
func ShowingResult(r AnalysisResult) UiState {
	return UiState{Phase: PhaseShowingResult, Result: &r}
}

// ShowingStatus renders a status banner.
func ShowingStatus(msg string, isError bool) UiState {
	return UiState{Phase: PhaseShowingStatus, Message: msg, IsError: isError}
}
