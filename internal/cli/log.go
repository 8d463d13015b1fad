// Package cli implements the npmdash command-line interface.
//
// The CLI runs the backend server and drives the enrichment pipeline from
// the terminal. It is built using cobra and supports verbose logging via
// the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - serve: Run the HTTP API
//   - lookup: Build the dashboard of an npm maintainer
//   - retry: Look up a maintainer and retry the packages that failed
//   - history: Show the last saved snapshot of a maintainer
//   - cache: Manage the registry response cache
//
// # Remote mode
//
// When a server URL is configured (--server or NPMDASH_SERVER), lookup,
// retry and history talk to that server's API instead of calling npm and
// GitHub directly.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Pipeline,
// cache and HTTP events are reported through observability hooks that
// log at debug level.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Enriched 42 packages (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// =============================================================================
// Observability
// =============================================================================

// logHooks reports pipeline, cache and HTTP events to the logger.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnRunStart(_ context.Context, runID, username string, total int) {
	h.logger.Debug("enrichment started", "run", runID, "user", username, "packages", total)
}

func (h *logHooks) OnRunComplete(_ context.Context, runID string, total, failed int, d time.Duration) {
	h.logger.Debug("enrichment finished", "run", runID, "packages", total, "failed", failed,
		"took", d.Round(time.Millisecond))
}

func (h *logHooks) OnBatchComplete(_ context.Context, runID string, batch, size, failed int, d time.Duration) {
	h.logger.Debug("batch merged", "run", runID, "batch", batch, "size", size, "failed", failed,
		"took", d.Round(time.Millisecond))
}

func (h *logHooks) OnItemFailed(_ context.Context, runID, pkg string, status int, err error) {
	if err != nil {
		h.logger.Debug("package failed", "run", runID, "package", pkg, "err", err)
		return
	}
	h.logger.Debug("package failed", "run", runID, "package", pkg, "status", status)
}

func (h *logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *logHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("request", "method", method, "host", host, "path", path)
}

func (h *logHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "host", host, "path", path, "status", status,
		"took", d.Round(time.Millisecond))
}

func (h *logHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("request failed", "method", method, "host", host, "path", path, "err", err)
}
