// CLAUDE:SUMMARY Profiling sessions: commit ingestion from profilingData payloads, render-cause derivation, aggregated reports.
// Package profiler accumulates per-commit render timings reported by
// runtime backends and aggregates them into per-component reports.
//
// A single session is active at a time. Display names are snapshotted at
// session start so components that unmount mid-session keep their names.
// Like the tree store, the profiler is synchronised by the daemon
// orchestrator, not internally.
package profiler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazyhaar/reactwatch/idgen"
)

// ErrNoSession reports an operation that needs an active session.
var ErrNoSession = errors.New("profiler: no active session")

// RenderCause classifies why a component rendered in a commit.
type RenderCause string

const (
	CauseFirstMount     RenderCause = "FirstMount"
	CausePropsChanged   RenderCause = "PropsChanged"
	CauseStateChanged   RenderCause = "StateChanged"
	CauseHooksChanged   RenderCause = "HooksChanged"
	CauseParentRendered RenderCause = "ParentRendered"
	// CauseForceUpdate is in the taxonomy but the wire never reports it
	// distinctly. Reserved.
	CauseForceUpdate RenderCause = "ForceUpdate"
)

// ChangeDescription records what changed for one component in one commit.
type ChangeDescription struct {
	DidHooksChange bool
	IsFirstMount   bool
	Props          []string
	State          []string
	Hooks          []int
}

// Commit is one atomic render batch reported by the runtime.
type Commit struct {
	Timestamp       int64   `json:"timestamp"` // unix ms
	Duration        float64 `json:"duration"`
	ActualDurations map[uint32]float64
	SelfDurations   map[uint32]float64
	Changes         map[uint32]*ChangeDescription
}

// Session is one profiling run.
type Session struct {
	ID           string
	Name         string
	StartedAt    time.Time
	StoppedAt    *time.Time
	Commits      []*Commit
	DisplayNames map[uint32]string // snapshot at start; survives unmounts
}

// Profiler owns the active session.
type Profiler struct {
	session *Session
	newID   idgen.Generator
	logger  *slog.Logger
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Profiler) { p.logger = l }
}

// WithIDGenerator sets a custom session ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(p *Profiler) { p.newID = gen }
}

// New creates an idle Profiler.
func New(opts ...Option) *Profiler {
	p := &Profiler{
		newID:  idgen.Prefixed("sess_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Active reports whether a session is running (started and not stopped).
func (p *Profiler) Active() bool {
	return p.session != nil && p.session.StoppedAt == nil
}

// Session returns the current session (possibly stopped), or nil.
func (p *Profiler) Session() *Session { return p.session }

// Start begins a new session, replacing any prior one. displayNames is the
// tree's current id → name snapshot.
func (p *Profiler) Start(name string, displayNames map[uint32]string) *Session {
	if name == "" {
		name = "profile-" + time.Now().Format("20060102-150405")
	}
	p.session = &Session{
		ID:           p.newID(),
		Name:         name,
		StartedAt:    time.Now(),
		DisplayNames: displayNames,
	}
	p.logger.Info("profiler: session started", "session", p.session.ID, "name", name)
	return p.session
}

// Summary is the result of stopping a session.
type Summary struct {
	Name         string            `json:"name"`
	DurationMs   int64             `json:"durationMs"`
	CommitCount  int               `json:"commitCount"`
	PerComponent []ComponentRender `json:"perComponentRenderCounts"`
}

// ComponentRender is one row of the per-component render count table.
type ComponentRender struct {
	ID    uint32 `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stop finalises the active session and returns its summary. resolve maps a
// node id to its current display name (from the tree) when still mounted.
func (p *Profiler) Stop(resolve NameFunc) (*Summary, error) {
	if !p.Active() {
		return nil, ErrNoSession
	}
	now := time.Now()
	p.session.StoppedAt = &now

	counts := make(map[uint32]int)
	for _, c := range p.session.Commits {
		for id := range c.ActualDurations {
			counts[id]++
		}
	}

	per := make([]ComponentRender, 0, len(counts))
	for id, count := range counts {
		per = append(per, ComponentRender{ID: id, Name: p.resolveName(id, resolve), Count: count})
	}
	sortComponentRenders(per)

	summary := &Summary{
		Name:         p.session.Name,
		DurationMs:   now.Sub(p.session.StartedAt).Milliseconds(),
		CommitCount:  len(p.session.Commits),
		PerComponent: per,
	}
	p.logger.Info("profiler: session stopped",
		"session", p.session.ID, "commits", summary.CommitCount, "duration_ms", summary.DurationMs)
	return summary, nil
}

// NameFunc resolves a node id against the live tree. ok=false when the
// node is no longer mounted.
type NameFunc func(id uint32) (string, bool)

// resolveName resolves a component name: live tree first, then the
// session's start snapshot, then a synthetic placeholder.
func (p *Profiler) resolveName(id uint32, resolve NameFunc) string {
	if resolve != nil {
		if name, ok := resolve(id); ok {
			return name
		}
	}
	if p.session != nil {
		if name, ok := p.session.DisplayNames[id]; ok {
			return name
		}
	}
	return fmt.Sprintf("Component#%d", id)
}

// ProcessPayload ingests a profilingData payload into the active session.
// Payloads with no active session are dropped with a warning: backends may
// flush trailing data after a stop.
func (p *Profiler) ProcessPayload(payload any) {
	if !p.Active() {
		p.logger.Warn("profiler: profilingData with no active session, dropped")
		return
	}

	commits := extractCommits(payload)
	p.session.Commits = append(p.session.Commits, commits...)
	if len(commits) > 0 {
		p.logger.Debug("profiler: commits ingested",
			"session", p.session.ID, "count", len(commits), "total", len(p.session.Commits))
	}
}

// sortComponentRenders orders by count desc, id asc for stable output.
func sortComponentRenders(per []ComponentRender) {
	sort.Slice(per, func(i, j int) bool {
		if per[i].Count != per[j].Count {
			return per[i].Count > per[j].Count
		}
		return per[i].ID < per[j].ID
	})
}
