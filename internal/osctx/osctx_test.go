package osctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromProbeFullPayload(t *testing.T) {
	raw := []byte(`{
		"window": {"title": " Inbox ", "appName": " Mail ", "bundleId": "com.apple.mail"},
		"screenshot": {"data": "QUJD", "format": "jpeg", "width": 800, "height": 600, "bytes": 3},
		"warnings": ["screen recording permission degraded"]
	}`)

	snap := FromProbe(raw, true)
	require.NotNil(t, snap.Window)
	assert.Equal(t, "Inbox", snap.Window.Title)
	assert.Equal(t, "Mail", snap.Window.AppName)
	assert.Equal(t, "com.apple.mail", snap.Window.BundleID)

	require.NotNil(t, snap.Screenshot)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", snap.ScreenshotURL())
	assert.Equal(t, 800, snap.Screenshot.Width)
	assert.Equal(t, []string{"screen recording permission degraded"}, snap.Warnings)
}

func TestFromProbeScreenshotDisabled(t *testing.T) {
	raw := []byte(`{"screenshot": {"data": "QUJD", "format": "png"}}`)
	snap := FromProbe(raw, false)
	assert.Nil(t, snap.Screenshot)
	assert.Empty(t, snap.ScreenshotURL())
}

func TestFromProbeDefaultsFormat(t *testing.T) {
	raw := []byte(`{"screenshot": {"data": "QUJD"}}`)
	snap := FromProbe(raw, true)
	require.NotNil(t, snap.Screenshot)
	assert.Equal(t, "jpeg", snap.Screenshot.Format)
}

func TestFromProbeMalformedOutputDegrades(t *testing.T) {
	snap := FromProbe([]byte("not json"), true)
	assert.Nil(t, snap.Window)
	assert.Nil(t, snap.Screenshot)
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "malformed")
}

func TestExecProbeUnconfiguredCommand(t *testing.T) {
	probe := &ExecProbe{}
	snap := probe.Capture(context.Background())
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "not configured")
}

func TestExecProbeFailingCommandDegrades(t *testing.T) {
	probe := &ExecProbe{Command: []string{"/nonexistent/probe-helper"}}
	snap := probe.Capture(context.Background())
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "empty context")
}

func TestDisabledProbe(t *testing.T) {
	snap := Disabled{}.Capture(context.Background())
	require.NotNil(t, snap)
	assert.Nil(t, snap.Window)
	assert.Empty(t, snap.ScreenshotURL())
}

func TestNilSnapshotScreenshotURL(t *testing.T) {
	var snap *Snapshot
	assert.Empty(t, snap.ScreenshotURL())
}
