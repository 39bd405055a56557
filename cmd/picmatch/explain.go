package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/search"
	"github.com/poiesic/picmatch/similarity"
)

// explainMonitor prints each search stage with its elapsed time.
type explainMonitor struct {
	w       io.Writer
	started time.Time
	entries int
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func newExplainMonitor(w io.Writer) *explainMonitor {
	return &explainMonitor{w: w}
}

func (m *explainMonitor) Start(query string, method similarity.Method) {
	m.started = time.Now()
	fmt.Fprintf(m.w, "query %q using %s\n", query, method)
}

func (m *explainMonitor) AfterSnapshot(entries []core.Entry) {
	m.entries = len(entries)
	fmt.Fprintf(m.w, "  snapshot: %d entries (%v)\n", len(entries), time.Since(m.started))
}

func (m *explainMonitor) AfterScoring(scores []float64) {
	best := 0.0
	for _, s := range scores {
		best = max(best, s)
	}
	fmt.Fprintf(m.w, "  scored: %d entries, best %.3f (%v)\n", len(scores), best, time.Since(m.started))
}

func (m *explainMonitor) AfterThreshold(kept int) {
	fmt.Fprintf(m.w, "  threshold: kept %d of %d\n", kept, m.entries)
}

func (m *explainMonitor) Finish(results []*core.Result) {
	fmt.Fprintf(m.w, "  returned %d results in %v\n", len(results), time.Since(m.started))
}
