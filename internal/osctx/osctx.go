// Package osctx captures desktop context: the active window plus an optional
// screenshot. Window inspection itself is delegated to an external helper
// command; this package only owns the snapshot shape and the degraded paths.
package osctx

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Window struct {
	Title    string `json:"title,omitempty"`
	AppName  string `json:"appName,omitempty"`
	BundleID string `json:"bundleId,omitempty"`
}

type Screenshot struct {
	DataURL string `json:"-"`
	Format  string `json:"format,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
}

// Snapshot is one immutable capture of desktop context. Warnings collect the
// probes that degraded instead of failing the run.
type Snapshot struct {
	Window     *Window
	Screenshot *Screenshot
	Warnings   []string
}

// ScreenshotURL returns the inline screenshot data URL, or "" when absent.
func (s *Snapshot) ScreenshotURL() string {
	if s == nil || s.Screenshot == nil {
		return ""
	}
	return s.Screenshot.DataURL
}

// Probe captures a context snapshot. Implementations must degrade gracefully:
// a probe never fails the run, it records warnings.
type Probe interface {
	Capture(ctx context.Context) *Snapshot
}

// Disabled is a Probe that reports nothing.
type Disabled struct{}

func (Disabled) Capture(context.Context) *Snapshot { return &Snapshot{} }

// probePayload is the JSON contract of the helper command.
type probePayload struct {
	Window *struct {
		Title    string `json:"title"`
		AppName  string `json:"appName"`
		BundleID string `json:"bundleId"`
	} `json:"window"`
	Screenshot *struct {
		Data   string `json:"data"`
		Format string `json:"format"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Bytes  int    `json:"bytes"`
	} `json:"screenshot"`
	Warnings []string `json:"warnings"`
}

// ExecProbe shells out to a helper that prints the probe JSON on stdout.
type ExecProbe struct {
	Command           []string
	ScreenshotEnabled bool
	Timeout           time.Duration
}

func (p *ExecProbe) Capture(ctx context.Context) *Snapshot {
	if len(p.Command) == 0 {
		return &Snapshot{Warnings: []string{"context probe is not configured"}}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...).Output()
	if err != nil {
		log.Warn().Err(err).Str("command", p.Command[0]).Msg("context probe failed")
		return &Snapshot{Warnings: []string{"unable to get window info; using empty context"}}
	}
	return FromProbe(out, p.ScreenshotEnabled)
}

// FromProbe decodes helper output into a Snapshot. Screenshot data arrives
// base64-encoded and is rewrapped as a data URL.
func FromProbe(raw []byte, screenshotEnabled bool) *Snapshot {
	var payload probePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &Snapshot{Warnings: []string{"context probe returned malformed output"}}
	}

	snap := &Snapshot{Warnings: payload.Warnings}
	if payload.Window != nil {
		snap.Window = &Window{
			Title:    strings.TrimSpace(payload.Window.Title),
			AppName:  strings.TrimSpace(payload.Window.AppName),
			BundleID: strings.TrimSpace(payload.Window.BundleID),
		}
	}
	if screenshotEnabled && payload.Screenshot != nil && payload.Screenshot.Data != "" {
		format := payload.Screenshot.Format
		if format == "" {
			format = "jpeg"
		}
		snap.Screenshot = &Screenshot{
			DataURL: fmt.Sprintf("data:image/%s;base64,%s", format, payload.Screenshot.Data),
			Format:  format,
			Width:   payload.Screenshot.Width,
			Height:  payload.Screenshot.Height,
			Bytes:   payload.Screenshot.Bytes,
		}
	}
	return snap
}
