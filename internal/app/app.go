// Package app wires the daemon: settings store, run coordinator, system
// clipboard and context collaborators, and the HTTP/websocket surface.
package app

import (
	"context"

	"pasteflow/internal/clipboard"
	"pasteflow/internal/history"
	"pasteflow/internal/model"
	"pasteflow/internal/osctx"
	"pasteflow/internal/pipeline"
	"pasteflow/internal/prompt"
	"pasteflow/internal/server"
	"pasteflow/internal/settings"
)

type App struct {
	srv   *server.Server
	store *settings.Store
	coord *pipeline.Coordinator
}

func New(settingsPath, addr string) (*App, error) {
	store, err := settings.Open(settingsPath)
	if err != nil {
		return nil, err
	}

	coord := pipeline.NewCoordinator(newRunner(store))
	router := server.NewRouter(server.Deps{
		Store:     store,
		Coord:     coord,
		Clipboard: clipboard.SystemWriter{},
		Paster:    clipboard.SystemPaster{},
	})

	return &App{
		srv:   server.New(addr, router),
		store: store,
		coord: coord,
	}, nil
}

func (a *App) Start() error { return a.srv.Start() }

func (a *App) Shutdown(ctx context.Context) error {
	a.coord.CancelAll()
	return a.srv.Shutdown(ctx)
}

// newRunner builds executors against the settings as they are at trigger
// time, so config edits apply to the next run without a restart.
func newRunner(store *settings.Store) pipeline.Runner {
	return func(ctx context.Context, runID string, sink pipeline.EventSink) (*pipeline.RunResult, error) {
		cfg := store.Config()
		exec := pipeline.NewExecutor(executorDeps(cfg, runID, sink))
		return exec.Run(ctx)
	}
}

// RunOnce executes a single pipeline run outside the daemon, for the CLI.
func RunOnce(ctx context.Context, settingsPath string, sink pipeline.EventSink) (*pipeline.RunResult, error) {
	store, err := settings.Open(settingsPath)
	if err != nil {
		return nil, err
	}
	exec := pipeline.NewExecutor(executorDeps(store.Config(), "", sink))
	return exec.Run(ctx)
}

func executorDeps(cfg settings.Config, runID string, sink pipeline.EventSink) pipeline.ExecutorDeps {
	return pipeline.ExecutorDeps{
		RunID:      runID,
		Config:     cfg,
		Events:     sink,
		Clipboard:  clipboard.SystemSource{},
		Probe:      probeFor(cfg),
		Prompts:    prompt.NewLoader(cfg.Prompt.BaseDir),
		NewBackend: model.NewBackend,
		History:    history.FileSink{},
	}
}

func probeFor(cfg settings.Config) osctx.Probe {
	if len(cfg.Context.ProbeCommand) == 0 {
		return osctx.Disabled{}
	}
	return &osctx.ExecProbe{
		Command:           cfg.Context.ProbeCommand,
		ScreenshotEnabled: cfg.Context.ScreenshotEnabled,
	}
}
