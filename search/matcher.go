package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/picmatch/catalog"
	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/similarity"
)

const (
	// DefaultTopK is the result limit used when callers have no preference.
	DefaultTopK = 5
	// DefaultThreshold is the minimum score used when callers have no preference.
	DefaultThreshold = 0.1
)

// Catalog is the read side of the catalog store the matcher scores.
type Catalog interface {
	ListAll() []core.Entry
	Descriptions() []core.Description
	Stats() core.CatalogStats
	Subscribe(l catalog.Listener)
}

var _ Catalog = (*catalog.Store)(nil)

// Matcher ranks catalog entries against queries with a switchable
// similarity backend.
type Matcher struct {
	catalog        Catalog
	registry       *similarity.Registry
	initial        similarity.Method
	scoringTimeout time.Duration
	logger         *slog.Logger

	switchMu sync.Mutex // serializes Start and SetMethod
	mu       sync.RWMutex
	active   similarity.Backend
}

// Stats combines catalog statistics with the matcher configuration.
type Stats struct {
	core.CatalogStats
	Method  similarity.Method
	Methods []similarity.Method
}

// Option configures a Matcher.
type Option func(*Matcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithInitialMethod selects the backend fitted by Start.
// Default is similarity.DefaultMethod.
func WithInitialMethod(name string) Option {
	return func(m *Matcher) error {
		method, err := similarity.ParseMethod(name)
		if err != nil {
			return err
		}
		m.initial = method
		return nil
	}
}

// WithScoringTimeout bounds each scoring call whose context carries no
// deadline of its own. Zero disables the bound.
func WithScoringTimeout(d time.Duration) Option {
	return func(m *Matcher) error {
		if d < 0 {
			return fmt.Errorf("%w: scoring timeout must not be negative", core.ErrInvalidArgument)
		}
		m.scoringTimeout = d
		return nil
	}
}

// NewMatcher creates a matcher over store using the backends in registry.
// The matcher subscribes to store so backend caches follow catalog changes.
// Call Start before searching.
func NewMatcher(store Catalog, registry *similarity.Registry, opts ...Option) (*Matcher, error) {
	if store == nil {
		return nil, ErrCatalogRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	m := &Matcher{
		catalog:  store,
		registry: registry,
		initial:  similarity.DefaultMethod,
		logger:   slog.Default().With("component", "matcher"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if _, err := registry.Get(m.initial); err != nil {
		return nil, err
	}

	store.Subscribe(m)
	return m, nil
}

// Start fits the initial backend against the current catalog and makes it
// active. Calling Start again refits the initial backend.
func (m *Matcher) Start(ctx context.Context) error {
	return m.activate(ctx, m.initial)
}

// SetMethod fits the named backend against the current catalog and only
// then makes it active. Unknown names return core.ErrUnsupportedMethod and
// a failed fit leaves the previous backend active.
func (m *Matcher) SetMethod(ctx context.Context, name string) error {
	method, err := similarity.ParseMethod(name)
	if err != nil {
		return err
	}
	return m.activate(ctx, method)
}

func (m *Matcher) activate(ctx context.Context, method similarity.Method) error {
	backend, err := m.registry.Get(method)
	if err != nil {
		return err
	}

	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	started := time.Now()
	if err := backend.Fit(ctx, m.catalog.Descriptions()); err != nil {
		m.logger.Error("error fitting similarity backend", "method", method, "err", err)
		return fmt.Errorf("fitting %s backend: %w", method, err)
	}

	m.mu.Lock()
	previous := m.active
	m.active = backend
	m.mu.Unlock()

	if previous == nil || previous.Method() != method {
		m.logger.Info("similarity method active", "method", method, "elapsed", time.Since(started))
	}
	return nil
}

// Method returns the active similarity method, or "" before Start.
func (m *Matcher) Method() similarity.Method {
	backend := m.current()
	if backend == nil {
		return ""
	}
	return backend.Method()
}

// Invalidate implements catalog.Listener by forwarding to every backend.
func (m *Matcher) Invalidate(ids ...string) {
	m.registry.Invalidate(ids...)
}

// Search returns up to topK catalog entries scoring at least threshold
// against query, best first.
func (m *Matcher) Search(ctx context.Context, query string, topK int, threshold float64) ([]*core.Result, error) {
	return m.SearchWithMonitor(ctx, query, topK, threshold, nil)
}

// SearchWithMonitor is Search with a monitor receiving callbacks at each
// stage of the search process.
func (m *Matcher) SearchWithMonitor(ctx context.Context, query string, topK int, threshold float64, monitor SearchMonitor) ([]*core.Result, error) {
	if err := core.ValidateQuery(query, topK, threshold); err != nil {
		return nil, err
	}

	// The backend is pinned for the whole search; a concurrent SetMethod
	// affects only later searches.
	backend := m.current()
	if backend == nil {
		return nil, ErrNotStarted
	}

	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, backend.Method())

	// 1. Snapshot the catalog
	entries := m.catalog.ListAll()
	monitor.AfterSnapshot(entries)
	if len(entries) == 0 {
		results := []*core.Result{}
		monitor.Finish(results)
		return results, nil
	}

	// 2. Score every entry
	corpus := make([]core.Description, len(entries))
	for i := range entries {
		corpus[i] = entries[i].Description
	}

	scoreCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && m.scoringTimeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, m.scoringTimeout)
		defer cancel()
	}

	scores, err := backend.Score(scoreCtx, query, corpus)
	if err != nil {
		m.logger.Error("error scoring catalog", "method", backend.Method(), "entries", len(corpus), "err", err)
		return nil, err
	}
	if len(scores) != len(entries) {
		return nil, fmt.Errorf("%w: %s returned %d scores for %d entries", ErrScoreCountMismatch, backend.Method(), len(scores), len(entries))
	}
	monitor.AfterScoring(scores)

	// 3. Apply the threshold
	kept := make([]int, 0, len(entries))
	for i, score := range scores {
		if score >= threshold {
			kept = append(kept, i)
		}
	}
	monitor.AfterThreshold(len(kept))

	// 4. Rank and truncate
	slices.SortStableFunc(kept, func(a, b int) int {
		if c := cmp.Compare(scores[b], scores[a]); c != 0 {
			return c
		}
		return cmp.Compare(entries[a].Image.Name, entries[b].Image.Name)
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}

	// 5. Join metadata
	results := make([]*core.Result, 0, len(kept))
	for _, i := range kept {
		entry := &entries[i]
		results = append(results, &core.Result{
			ImageName:       entry.Image.Name,
			DescriptionId:   entry.Description.Id,
			Description:     entry.Description.Text,
			Keywords:        entry.Description.Keywords,
			Location:        entry.Image.Location,
			Score:           scores[i],
			MatchedKeywords: matchedKeywords(entry.Description.Keywords, query),
		})
	}
	monitor.Finish(results)

	return results, nil
}

// Stats reports catalog statistics together with the active method.
func (m *Matcher) Stats() Stats {
	return Stats{
		CatalogStats: m.catalog.Stats(),
		Method:       m.Method(),
		Methods:      m.registry.Methods(),
	}
}

// Close closes every registered backend.
func (m *Matcher) Close() error {
	return m.registry.Close()
}

func (m *Matcher) current() similarity.Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}
