package selfanalysis

import (
	"context"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// logStreams maps each LogBundle field to its file name under LogDir.
var logStreams = []struct {
	name string
	file string
}{
	{"error", "error.log"},
	{"orchestrator", "orchestrator.log"},
	{"frontend", "frontend.log"},
}

// GatherContext assembles the system snapshot: log tails read through
// the filesystem MCP server, process memory stats, uptime, and the
// recent chat. A missing server or failed reads degrade to a snapshot
// marked Fallback instead of aborting the analysis.
func (a *Analyzer) GatherContext(ctx context.Context, history []types.ChatMessage) *types.AnalysisContext {
	snapshot := &types.AnalysisContext{
		Timestamp:   time.Now(),
		UptimeSec:   time.Since(a.startedAt).Seconds(),
		MemoryUsage: memoryUsage(),
		RecentChat:  history,
	}

	server := a.settings.FilesystemServer
	if server == "" || a.catalog == nil || !a.catalog.HasServer(server) {
		a.warnf("⚠️ Filesystem server %q unavailable, analysis runs without logs", server)
		snapshot.Fallback = true
		return snapshot
	}

	tail := a.settings.TailLines
	if tail <= 0 {
		tail = 50
	}

	gathered := 0
	for _, stream := range logStreams {
		lines := a.readLogTail(ctx, server, path.Join(a.settings.LogDir, stream.file), tail)
		if lines == nil {
			continue
		}
		gathered++
		switch stream.name {
		case "error":
			snapshot.Logs.Error = lines
		case "orchestrator":
			snapshot.Logs.Orchestrator = lines
		case "frontend":
			snapshot.Logs.Frontend = lines
		}
	}
	if gathered == 0 {
		snapshot.Fallback = true
	}
	return snapshot
}

// readLogTail fetches the last tail lines of one log file. Returns nil
// when the read failed entirely.
func (a *Analyzer) readLogTail(ctx context.Context, server, logPath string, tail int) []string {
	out, isErr, err := a.catalog.CallTool(ctx, server, "read_text_file", map[string]interface{}{
		"path": logPath,
		"tail": tail,
	})
	if err != nil || isErr {
		a.debugf("Log read failed for %s: isErr=%t err=%v", logPath, isErr, err)
		return nil
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines
}

// memoryUsage samples the Go runtime. Values are rounded to whole MB
// so the prompt stays short.
func memoryUsage() map[string]interface{} {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return map[string]interface{}{
		"alloc_mb":   stats.Alloc / (1 << 20),
		"sys_mb":     stats.Sys / (1 << 20),
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
}
