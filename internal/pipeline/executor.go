package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pasteflow/internal/clipboard"
	"pasteflow/internal/history"
	"pasteflow/internal/osctx"
	"pasteflow/internal/prompt"
	"pasteflow/internal/settings"
)

// ExecutorDeps wires one run's collaborators. NewBackend is invoked per run
// so a settings change between runs takes effect without a restart.
type ExecutorDeps struct {
	RunID      string
	Config     settings.Config
	Events     EventSink
	Clipboard  clipboard.Source
	Probe      osctx.Probe
	Prompts    *prompt.Loader
	NewBackend func(cfg settings.Config) (Backend, error)
	History    history.Sink
}

// Executor drives one end-to-end run. It owns the Run exclusively; the
// coordinator only ever sees the emitted events and the final RunResult.
type Executor struct {
	runID string
	deps  ExecutorDeps

	manualResult  *IntentResult
	manualPayload map[string]any
	timings       Timings
}

func NewExecutor(deps ExecutorDeps) *Executor {
	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Executor{runID: runID, deps: deps}
}

func (e *Executor) RunID() string { return e.runID }

// Run executes the pipeline. On failure it emits a single error event
// carrying the manual candidate as fallback (when one could be built), then
// returns the failure. Cancellation is silent.
func (e *Executor) Run(ctx context.Context) (*RunResult, error) {
	res, err := e.run(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.emitError(err)
		}
		return nil, err
	}
	return res, nil
}

type candidateEntry struct {
	id        string
	candidate IntentCandidate
}

func (e *Executor) run(ctx context.Context) (*RunResult, error) {
	cfg := e.deps.Config

	start := time.Now()
	snap, err := e.deps.Clipboard.Read(cfg.Model.TextOnly)
	e.timings.Clipboard = time.Since(start)
	if err != nil {
		return nil, errors.Wrap(err, "read clipboard")
	}
	if snap == nil {
		return nil, clipboard.ErrEmpty
	}

	log.Info().
		Str("run_id", e.runID).
		Bool("text_only", cfg.Model.TextOnly).
		Bool("has_text", snap.HasText()).
		Bool("has_image", snap.HasImage()).
		Msg("run started")

	manual := e.buildManualResult(snap)
	e.manualResult = &manual
	e.manualPayload = candidatePayload(manual.Candidate, ManualCandidateID, manual.Output)

	clipboardType := "text"
	if snap.HasImage() {
		clipboardType = "image"
	}
	e.emit(EventRunStarted, map[string]any{
		"clipboard_type": clipboardType,
		"has_text":       snap.HasText(),
	})

	start = time.Now()
	osSnap := e.deps.Probe.Capture(ctx)
	e.timings.Context = time.Since(start)

	// Text-only mode with no usable text: skip both stages and hand back the
	// passthrough candidate alone.
	if cfg.Model.TextOnly && !snap.HasText() {
		e.emit(EventCandidates, map[string]any{"items": []map[string]any{e.manualPayload}})
		results := []IntentResult{manual}
		e.writeHistory(snap, osSnap, results)
		e.emit(EventRunCompleted, map[string]any{"result_count": len(results)})
		return e.result(snap, osSnap, results), nil
	}

	backend, err := e.deps.NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	stage1Req, err := e.buildStage1Request(snap, osSnap)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	intents, err := backend.GenerateIntents(ctx, stage1Req)
	e.timings.Stage1 = time.Since(start)
	if err != nil {
		return nil, errors.Wrap(err, "stage1 intent generation")
	}

	entries := make([]candidateEntry, len(intents))
	for i, c := range intents {
		entries[i] = candidateEntry{id: uuid.NewString(), candidate: c}
	}

	items := make([]map[string]any, 0, len(entries)+1)
	for _, entry := range entries {
		items = append(items, candidatePayload(entry.candidate, entry.id, ""))
	}
	items = append(items, e.manualPayload)
	e.emit(EventCandidates, map[string]any{"items": items})

	stage2Results, err := e.runStage2(ctx, backend, snap, entries)
	if err != nil {
		return nil, err
	}

	results := append(stage2Results, manual)
	e.writeHistory(snap, osSnap, results)
	e.emit(EventRunCompleted, map[string]any{"result_count": len(results)})
	return e.result(snap, osSnap, results), nil
}

func (e *Executor) result(snap *clipboard.Snapshot, osSnap *osctx.Snapshot, results []IntentResult) *RunResult {
	return &RunResult{
		RunID:     e.runID,
		Clipboard: snap,
		Context:   osSnap,
		Results:   results,
		Timings:   e.timings,
	}
}

func (e *Executor) buildStage1Request(snap *clipboard.Snapshot, osSnap *osctx.Snapshot) (Stage1Request, error) {
	cfg := e.deps.Config
	screenshotURL := ""
	if cfg.Context.ScreenshotEnabled {
		screenshotURL = osSnap.ScreenshotURL()
	}
	system, err := e.deps.Prompts.Render("system/stage1.md", map[string]any{"lang": cfg.UI.Locale})
	if err != nil {
		return Stage1Request{}, err
	}
	windowTitle, appName := "", ""
	if osSnap.Window != nil {
		windowTitle = osSnap.Window.Title
		appName = osSnap.Window.AppName
	}
	user, err := e.deps.Prompts.Render("templates/stage1_user.md", map[string]any{
		"clipboard_text":     snap.Text,
		"clipboard_is_image": snap.HasImage(),
		"app_name":           appName,
		"window_title":       windowTitle,
		"has_screenshot":     screenshotURL != "",
		"lang":               cfg.UI.Locale,
	})
	if err != nil {
		return Stage1Request{}, err
	}
	clipImageURL := ""
	if !cfg.Model.TextOnly {
		clipImageURL = snap.ImageDataURL()
	}
	return Stage1Request{
		SystemPrompt:      system,
		UserPrompt:        user,
		ClipboardImageURL: clipImageURL,
		ScreenshotURL:     screenshotURL,
		MaxCandidates:     cfg.Stage1.MaxCandidates,
	}, nil
}

func (e *Executor) runStage2(ctx context.Context, backend Backend, snap *clipboard.Snapshot, entries []candidateEntry) ([]IntentResult, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	cfg := e.deps.Config
	log.Info().Str("run_id", e.runID).Int("candidates", len(entries)).Msg("stage2 generation start")

	stage2System, err := e.deps.Prompts.Render("system/stage2.md", map[string]any{})
	if err != nil {
		return nil, err
	}

	// The limiter caps simultaneous outbound calls per run; the backend is
	// invoked under it but never owns it.
	sem := semaphore.NewWeighted(int64(cfg.Stage1.MaxCandidates))
	results := make([]IntentResult, len(entries))
	durations := make([]time.Duration, len(entries))

	wallStart := time.Now()
	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			start := time.Now()
			results[i] = e.generateCandidate(ctx, backend, snap, stage2System, entry)
			durations[i] = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.timings.Stage2Total = time.Since(wallStart)
	e.timings.Stage2Candidates = make(map[string]time.Duration, len(entries))
	for i, entry := range entries {
		e.timings.Stage2Candidates[entry.id] = durations[i]
	}
	return results, nil
}

func (e *Executor) generateCandidate(ctx context.Context, backend Backend, snap *clipboard.Snapshot, stage2System string, entry candidateEntry) IntentResult {
	cfg := e.deps.Config
	user, err := e.deps.Prompts.Render("templates/stage2_user.md", map[string]any{
		"clipboard_text":     snap.Text,
		"clipboard_is_image": snap.HasImage(),
		"intent_title":       entry.candidate.Title,
		"intent_description": entry.candidate.Description,
		"lang":               cfg.UI.Locale,
	})

	var result IntentResult
	if err != nil {
		result = IntentResult{Candidate: entry.candidate, Err: err.Error()}
	} else {
		clipImageURL := ""
		if !cfg.Model.TextOnly {
			clipImageURL = snap.ImageDataURL()
		}
		result = backend.GenerateOutputs(ctx, Stage2Request{
			SystemPrompt:      stage2System,
			UserPrompt:        user,
			ClipboardImageURL: clipImageURL,
			Candidate:         entry.candidate,
		}, func(delta string) error {
			if delta == "" {
				return nil
			}
			e.emit(EventPreviewChunk, map[string]any{
				"candidate_id": entry.id,
				"delta_text":   delta,
			})
			return nil
		})
	}
	result.CandidateID = entry.id

	final := map[string]any{"candidate_id": entry.id, "is_final": true}
	if result.Err != "" {
		final["error"] = result.Err
	}
	e.emit(EventPreviewChunk, final)
	return result
}

func (e *Executor) buildManualResult(snap *clipboard.Snapshot) IntentResult {
	output := ""
	switch {
	case snap.HasText():
		output = snap.Text
	case snap.OriginalHasImage:
		output = ManualImageOutput
	}
	return IntentResult{
		Candidate: IntentCandidate{
			Title:       "Paste as-is",
			Description: "Keep the original clipboard content without changes.",
			Confidence:  "manual",
		},
		CandidateID: ManualCandidateID,
		Output:      output,
	}
}

func candidatePayload(c IntentCandidate, id string, initialOutput string) map[string]any {
	payload := map[string]any{
		"id":          id,
		"title":       c.Title,
		"description": c.Description,
		"confidence":  c.Confidence,
		"is_manual":   id == ManualCandidateID,
	}
	if id == ManualCandidateID {
		payload["initial_output"] = initialOutput
	}
	return payload
}

func (e *Executor) emit(eventType string, payload map[string]any) {
	if e.deps.Events == nil {
		return
	}
	e.deps.Events.Emit(Event{RunID: e.runID, Type: eventType, Payload: payload})
}

func (e *Executor) emitError(err error) {
	payload := map[string]any{"message": err.Error()}
	if e.manualPayload != nil {
		payload["fallback"] = e.manualPayload
	}
	e.emit(EventError, payload)
}

func (e *Executor) writeHistory(snap *clipboard.Snapshot, osSnap *osctx.Snapshot, results []IntentResult) {
	if e.deps.History == nil {
		return
	}

	clipboardPreview := "[image]"
	if snap.HasText() {
		clipboardPreview = truncate(snap.Text, 500)
	}

	record := map[string]any{
		"clipboard_type":      clipType(snap),
		"clipboard_preview":   clipboardPreview,
		"clipboard_has_image": snap.OriginalHasImage,
		"clipboard_has_text":  snap.HasText(),
		"warnings":            osSnap.Warnings,
	}
	window := map[string]any{"title": nil, "app": nil}
	if osSnap.Window != nil {
		window["title"] = osSnap.Window.Title
		window["app"] = osSnap.Window.AppName
	}
	record["window"] = window
	screenshot := map[string]any{"present": osSnap.ScreenshotURL() != ""}
	if osSnap.Screenshot != nil {
		screenshot["bytes"] = osSnap.Screenshot.Bytes
		screenshot["width"] = osSnap.Screenshot.Width
		screenshot["height"] = osSnap.Screenshot.Height
		screenshot["format"] = osSnap.Screenshot.Format
	}
	record["screenshot"] = screenshot

	items := make([]map[string]any, 0, len(results))
	for _, res := range results {
		items = append(items, map[string]any{
			"title":          res.Candidate.Title,
			"description":    res.Candidate.Description,
			"confidence":     res.Candidate.Confidence,
			"candidate_id":   res.CandidateID,
			"output_preview": truncate(res.Output, 400),
			"error":          res.Err,
		})
	}
	record["results"] = items

	e.deps.History.Append(e.deps.Config.History.Path, record)
}

func clipType(snap *clipboard.Snapshot) string {
	if snap.OriginalHasImage {
		return "image"
	}
	return "text"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
