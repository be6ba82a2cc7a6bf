// Package pipeline turns one clipboard snapshot into a set of concurrently
// generated candidate paste transformations and coordinates the runs that
// produce them.
package pipeline

import (
	"context"
	"time"

	"pasteflow/internal/clipboard"
	"pasteflow/internal/osctx"
)

// ManualCandidateID is the reserved id of the always-present passthrough
// candidate. Generated candidate ids are uuids and can never collide with it.
const ManualCandidateID = "manual"

// ManualImageOutput is the manual candidate's output when the original
// clipboard held an image: the clipboard already has the content, so the
// marker only describes it.
const ManualImageOutput = "[Clipboard image preserved as-is]"

// IntentCandidate is a proposed transformation produced by stage 1.
type IntentCandidate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
}

// IntentResult is the realized output of one candidate after stage 2. The
// candidate value is embedded, not inherited; Err carries a per-candidate
// failure without affecting siblings.
type IntentResult struct {
	Candidate   IntentCandidate
	CandidateID string
	Output      string
	Err         string
}

// Timings records wall-clock durations for each phase of a run.
type Timings struct {
	Clipboard        time.Duration
	Context          time.Duration
	Stage1           time.Duration
	Stage2Total      time.Duration
	Stage2Candidates map[string]time.Duration
}

// RunResult is the terminal artifact of one run.
type RunResult struct {
	RunID     string
	Clipboard *clipboard.Snapshot
	Context   *osctx.Snapshot
	Results   []IntentResult
	Timings   Timings
}

// Event is one lifecycle notification. Events are transient; they are
// forwarded, never persisted.
type Event struct {
	RunID   string
	Type    string
	Payload map[string]any
}

const (
	EventRunStarted      = "run_started"
	EventCandidates      = "candidates"
	EventPreviewChunk    = "preview_chunk"
	EventRunCompleted    = "run_completed"
	EventError           = "error"
	EventRunCancelled    = "run_cancelled"
	EventSettingsUpdated = "settings_updated"
)

// EventSink receives lifecycle events. Implementations must not block the
// emitting run and must swallow their own failures.
type EventSink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Stage1Request asks the backend for a list of intent candidates.
type Stage1Request struct {
	SystemPrompt      string
	UserPrompt        string
	ClipboardImageURL string
	ScreenshotURL     string
	MaxCandidates     int
}

// Stage2Request asks the backend for one candidate's detailed output.
type Stage2Request struct {
	SystemPrompt      string
	UserPrompt        string
	ClipboardImageURL string
	Candidate         IntentCandidate
}

// Backend is the model adapter contract. GenerateOutputs never returns an
// error: terminal failures are captured in the result's Err field so one
// candidate cannot abort its siblings. The onDelta callback receives
// incremental text; its errors are logged and discarded by the adapter.
type Backend interface {
	GenerateIntents(ctx context.Context, req Stage1Request) ([]IntentCandidate, error)
	GenerateOutputs(ctx context.Context, req Stage2Request, onDelta func(delta string) error) IntentResult
	Close() error
}
