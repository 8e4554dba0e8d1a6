package capture

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

func TestFileServiceCaptureEnforcesRetention(t *testing.T) {
	dir := t.TempDir()
	svc := NewFileService(models.CaptureSettings{
		Directory: dir,
		MaxStored: 2,
		Command:   "touch {{output}}",
	}, nil)

	for i := 0; i < 4; i++ {
		shot, err := svc.Capture(context.Background(), types.CaptureFullScreen)
		require.NoError(t, err)
		assert.FileExists(t, shot.Path)
		assert.Contains(t, shot.Path, "full_screen")
		// Distinct millisecond timestamps keep file names unique.
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "retention cap should prune the oldest captures")
}

func TestFileServiceCaptureCommandFailure(t *testing.T) {
	svc := NewFileService(models.CaptureSettings{
		Directory: t.TempDir(),
		Command:   "false",
	}, nil)

	_, err := svc.Capture(context.Background(), types.CaptureActiveWindow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture command failed")
}

func TestStubServesCannedShots(t *testing.T) {
	stub := &Stub{
		Shots: map[types.CaptureMode]*Shot{
			types.CaptureActiveWindow: {Path: "window.png", Data: []byte("img")},
		},
	}

	shot, err := stub.Capture(context.Background(), types.CaptureActiveWindow)
	require.NoError(t, err)
	assert.Equal(t, "window.png", shot.Path)
	assert.True(t, strings.HasPrefix(shot.DataURL(), "data:image/png;base64,"))

	placeholder, err := stub.Capture(context.Background(), types.CaptureDesktopOnly)
	require.NoError(t, err)
	assert.NotEmpty(t, placeholder.Data)

	assert.Equal(t, []types.CaptureMode{types.CaptureActiveWindow, types.CaptureDesktopOnly}, stub.Calls)
}

func TestStubForcedError(t *testing.T) {
	stub := &Stub{Err: errors.New("no display")}
	_, err := stub.Capture(context.Background(), types.CaptureFullScreen)
	assert.ErrorContains(t, err, "no display")
}
