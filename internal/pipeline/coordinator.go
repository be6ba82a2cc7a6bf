package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runner executes one run to completion, emitting events into sink. The
// coordinator supplies it so tests can substitute the whole executor.
type Runner func(ctx context.Context, runID string, sink EventSink) (*RunResult, error)

// Coordinator owns the set of in-flight runs: it spawns executors as
// cancellable background goroutines, buffers streamed partial output per
// run/candidate so late confirm queries can resolve, and stores final
// results. All tables share one mutex; every mutation is a few map
// operations.
type Coordinator struct {
	runner Runner

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	results map[string]*RunResult
	partial map[string]map[string]string
	manual  map[string]string
}

func NewCoordinator(runner Runner) *Coordinator {
	return &Coordinator{
		runner:  runner,
		cancels: make(map[string]context.CancelFunc),
		results: make(map[string]*RunResult),
		partial: make(map[string]map[string]string),
		manual:  make(map[string]string),
	}
}

// StartRun launches a run in the background and returns its id immediately.
// When the run finishes, bookkeeping is dropped and (on success) the final
// result is stored; a failed run stores nothing, so confirm queries for it
// find nothing.
func (c *Coordinator) StartRun(sink EventSink, requestID string) string {
	runID := requestID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[runID] = cancel
	c.mu.Unlock()

	go func() {
		res, err := c.runner(ctx, runID, sink)

		c.mu.Lock()
		delete(c.cancels, runID)
		delete(c.partial, runID)
		delete(c.manual, runID)
		if err == nil && res != nil {
			c.results[runID] = res
		}
		c.mu.Unlock()
		cancel()

		switch {
		case errors.Is(err, context.Canceled):
			log.Debug().Str("run_id", runID).Msg("run cancelled")
		case err != nil:
			log.Error().Err(err).Str("run_id", runID).Msg("run failed")
		}
	}()

	return runID
}

// CancelRun stops a still-running run and reclaims its partial-output
// buffers. Returns whether a running task was found.
func (c *Coordinator) CancelRun(runID string) bool {
	c.mu.Lock()
	cancel, found := c.cancels[runID]
	delete(c.cancels, runID)
	delete(c.partial, runID)
	delete(c.manual, runID)
	c.mu.Unlock()

	if found {
		cancel()
	}
	return found
}

// CancelAll cancels every in-flight run. Used on client disconnect.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for runID := range c.cancels {
		cancels = append(cancels, c.cancels[runID])
		delete(c.partial, runID)
		delete(c.manual, runID)
	}
	c.cancels = make(map[string]context.CancelFunc)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// HandleEvent is a passive sink maintaining the preview buffers: deltas
// append, a final marker ensures an entry exists, an error invalidates
// whatever partial text accumulated. The manual candidate arrives complete
// inside the candidates event and is recorded separately.
func (c *Coordinator) HandleEvent(ev Event) {
	switch ev.Type {
	case EventPreviewChunk:
		candidateID, _ := ev.Payload["candidate_id"].(string)
		if candidateID == "" {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		buf := c.partial[ev.RunID]
		if delta, _ := ev.Payload["delta_text"].(string); delta != "" {
			if buf == nil {
				buf = make(map[string]string)
				c.partial[ev.RunID] = buf
			}
			buf[candidateID] += delta
		} else if isFinal, _ := ev.Payload["is_final"].(bool); isFinal {
			if buf == nil {
				buf = make(map[string]string)
				c.partial[ev.RunID] = buf
			}
			if _, ok := buf[candidateID]; !ok {
				buf[candidateID] = ""
			}
		}
		if errMsg, _ := ev.Payload["error"].(string); errMsg != "" {
			if buf == nil {
				buf = make(map[string]string)
				c.partial[ev.RunID] = buf
			}
			buf[candidateID] = ""
		}
	case EventCandidates:
		items, _ := ev.Payload["items"].([]map[string]any)
		for _, item := range items {
			if isManual, _ := item["is_manual"].(bool); !isManual {
				continue
			}
			output, _ := item["initial_output"].(string)
			c.mu.Lock()
			c.manual[ev.RunID] = output
			c.mu.Unlock()
		}
	}
}

// Result returns the stored final result for a completed run, or nil.
func (c *Coordinator) Result(runID string) *RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[runID]
}

// CandidateOutput resolves a candidate's text for confirm: the completed
// run's stored result first, then the manual-output shortcut, then the
// partial buffer. The bool distinguishes "not ready yet" from an empty
// string that is ready.
func (c *Coordinator) CandidateOutput(runID, candidateID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res := c.results[runID]; res != nil {
		for _, item := range res.Results {
			if item.CandidateID == candidateID {
				return item.Output, true
			}
		}
	}
	if candidateID == ManualCandidateID {
		if output := c.manual[runID]; output != "" {
			return output, true
		}
	}
	if buf := c.partial[runID]; buf != nil {
		if output, ok := buf[candidateID]; ok {
			return output, true
		}
	}
	return "", false
}
