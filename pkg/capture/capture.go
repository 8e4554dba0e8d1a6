// Package capture takes and retains the screenshots visual
// verification reasons over.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// DefaultMaxStored bounds how many capture files stay on disk.
const DefaultMaxStored = 10

// Shot is one captured screenshot: where it landed and its bytes.
type Shot struct {
	Path string
	Data []byte
}

// DataURL renders the shot as an inline image for vision prompts.
func (s *Shot) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// Service captures one screenshot in the requested mode.
type Service interface {
	Capture(ctx context.Context, mode types.CaptureMode) (*Shot, error)
}

// FileService shells out to an external capture command and keeps a
// bounded, append-only directory of shots. Captures serialize on one
// mutex; concurrent visual attempts would race the screen anyway.
type FileService struct {
	dir       string
	maxStored int
	command   []string
	logger    utils.ExtendedLogger

	mu sync.Mutex
}

// NewFileService builds the capture service from settings.
func NewFileService(cfg models.CaptureSettings, logger utils.ExtendedLogger) *FileService {
	dir := cfg.Directory
	if dir == "" {
		dir = "captures"
	}
	maxStored := cfg.MaxStored
	if maxStored <= 0 {
		maxStored = DefaultMaxStored
	}
	command := strings.Fields(cfg.Command)
	if len(command) == 0 {
		command = []string{"screencapture", "-x", "{{output}}"}
	}
	return &FileService{dir: dir, maxStored: maxStored, command: command, logger: logger}
}

// Capture runs the external command and returns the shot bytes. The
// retention cap is enforced after every successful capture.
func (s *FileService) Capture(ctx context.Context, mode types.CaptureMode) (*Shot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory %s: %w", s.dir, err)
	}

	// Timestamp before mode so lexical order is capture order.
	name := fmt.Sprintf("capture_%s_%s.png", time.Now().Format("20060102_150405.000"), mode)
	path := filepath.Join(s.dir, name)

	argv := make([]string, len(s.command))
	for i, arg := range s.command {
		arg = strings.ReplaceAll(arg, "{{output}}", path)
		arg = strings.ReplaceAll(arg, "{{mode}}", string(mode))
		argv[i] = arg
	}

	if s.logger != nil {
		s.logger.Debugf("📸 Capturing %s screenshot to %s", mode, path)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture command failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture produced no readable file: %w", err)
	}

	s.prune()
	return &Shot{Path: path, Data: data}, nil
}

// prune removes the oldest capture files beyond the retention cap.
// Names embed the timestamp, so lexical order is capture order.
func (s *FileService) prune() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "capture_") {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= s.maxStored {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.maxStored] {
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil && s.logger != nil {
			s.logger.Debugf("🧹 Pruned old capture %s", name)
		}
	}
}

// Stub is the test capture service: canned shots per mode, recorded
// calls, optional forced error.
type Stub struct {
	Shots map[types.CaptureMode]*Shot
	Err   error

	mu    sync.Mutex
	Calls []types.CaptureMode
}

// Capture returns the canned shot for mode, or a one-pixel placeholder
// when none is registered.
func (s *Stub) Capture(_ context.Context, mode types.CaptureMode) (*Shot, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, mode)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if shot, ok := s.Shots[mode]; ok {
		return shot, nil
	}
	return &Shot{Path: fmt.Sprintf("stub_%s.png", mode), Data: []byte{0x89, 'P', 'N', 'G'}}, nil
}
