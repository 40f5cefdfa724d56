// Package export reads captured state-change files and writes analysis
// results for offline review.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/autopilot-home/pattern-engine/internal/domain/errors"
	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

// capture files are line-delimited JSON named state_changes_<stamp>.jsonl
const capturePattern = "state_changes_*.jsonl"

// maxLineBytes bounds one capture line; concurrent state snapshots make
// lines long but never this long.
const maxLineBytes = 1 << 20

// Reader loads captured events.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a capture reader.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// LatestCapture returns the newest capture file in dir.
func (r *Reader) LatestCapture(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, capturePattern))
	if err != nil {
		return "", fmt.Errorf("listing captures in %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", errors.NewNotFoundError("capture file")
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// ReadFile loads every parseable event from one capture file. Malformed
// lines are counted and skipped; a capture interrupted mid-write still
// yields all its complete records.
func (r *Reader) ReadFile(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var events []event.Event
	malformed := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			malformed++
			continue
		}
		if err := e.Validate(); err != nil {
			malformed++
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading capture %s: %w", path, err)
	}

	if malformed > 0 {
		r.logger.Warn("skipped malformed capture lines",
			slog.String("file", filepath.Base(path)),
			slog.Int("malformed", malformed),
			slog.Int("loaded", len(events)),
		)
	}
	return events, nil
}

// ReadLatest loads the newest capture in dir.
func (r *Reader) ReadLatest(dir string) ([]event.Event, error) {
	path, err := r.LatestCapture(dir)
	if err != nil {
		return nil, err
	}
	r.logger.Info("loading capture", slog.String("file", filepath.Base(path)))
	return r.ReadFile(path)
}

// PatternExport is the on-disk result document.
type PatternExport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	WindowDays  int               `json:"window_days"`
	Patterns    []pattern.Pattern `json:"patterns"`
}

// WritePatterns writes the result document as indented JSON.
func WritePatterns(path string, doc PatternExport) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding patterns: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing patterns to %s: %w", path, err)
	}
	return nil
}
