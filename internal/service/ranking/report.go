package ranking

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

// Failure records one analyzer that did not complete. A run with failures
// still reports the patterns the other analyzers produced.
type Failure struct {
	Kind    pattern.Kind
	Message string
}

// Report is the human-readable summary of one analysis run.
type Report struct {
	GeneratedAt      time.Time
	WindowDays       int
	TotalEvents      int
	AnalyzedEvents   int
	ExcludedByReason map[string]int
	Patterns         []pattern.Pattern
	Failures         []Failure
	TopPerKind       int
}

var kindTitles = map[pattern.Kind]string{
	pattern.KindTemporal:    "Time-of-day patterns",
	pattern.KindSequential:  "Trigger-then-action patterns",
	pattern.KindConditional: "Context correlations (review only)",
}

// Render writes the report. Failed analyzers are listed separately from
// kinds that ran clean and simply found nothing.
func (r Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "Behavioral pattern report  %s\n", r.GeneratedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Window: %d days\n", r.WindowDays)
	fmt.Fprintf(w, "Events: %d analyzed of %d collected\n", r.AnalyzedEvents, r.TotalEvents)

	if len(r.ExcludedByReason) > 0 {
		reasons := make([]string, 0, len(r.ExcludedByReason))
		for reason := range r.ExcludedByReason {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		fmt.Fprintln(w, "Excluded:")
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %-14s %d\n", reason, r.ExcludedByReason[reason])
		}
	}

	failed := make(map[pattern.Kind]string, len(r.Failures))
	for _, f := range r.Failures {
		failed[f.Kind] = f.Message
	}

	for _, kind := range pattern.Kinds() {
		fmt.Fprintf(w, "\n%s\n", kindTitles[kind])
		if msg, ok := failed[kind]; ok {
			fmt.Fprintf(w, "  analyzer failed: %s\n", msg)
			continue
		}
		top := Top(r.Patterns, kind, r.TopPerKind)
		if len(top) == 0 {
			fmt.Fprintln(w, "  none found")
			continue
		}
		for i, p := range top {
			fmt.Fprintf(w, "  %2d. %s\n", i+1, p.Description)
			fmt.Fprintf(w, "      confidence %.0f%%  observed %d/%d\n",
				p.Confidence*100, p.Occurrences, p.Trials)
		}
	}
	return nil
}
