package search

import (
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/similarity"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, method similarity.Method)
	AfterSnapshot(entries []core.Entry)
	AfterScoring(scores []float64)
	AfterThreshold(kept int)
	Finish(results []*core.Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ similarity.Method) {}
func (n *noopMonitor) AfterSnapshot(_ []core.Entry)        {}
func (n *noopMonitor) AfterScoring(_ []float64)            {}
func (n *noopMonitor) AfterThreshold(_ int)                {}
func (n *noopMonitor) Finish(_ []*core.Result)             {}
