package profiler

import (
	"fmt"
	"sort"
)

// ErrNoCommit reports a commit index out of range.
var ErrNoCommit = fmt.Errorf("profiler: commit not found")

// ChangedKeys is the union of changed prop names, state keys, and hook
// indices across commits, deduplicated and in first-seen order.
type ChangedKeys struct {
	Props []string `json:"props,omitempty"`
	State []string `json:"state,omitempty"`
	Hooks []int    `json:"hooks,omitempty"`
}

// Report aggregates a component's renders across the session's commits.
type Report struct {
	ID            uint32        `json:"id"`
	Name          string        `json:"name"`
	RenderCount   int           `json:"renderCount"`
	TotalDuration float64       `json:"totalDuration"`
	AvgDuration   float64       `json:"avgDuration"`
	MaxDuration   float64       `json:"maxDuration"`
	Causes        []RenderCause `json:"causes"`
	ChangedKeys   ChangedKeys   `json:"changedKeys"`
}

// causesFor derives the ordered cause set for one change description.
// First mounts short-circuit: FirstMount never co-occurs with other causes.
// ParentRendered is the fallback when nothing else explains the render.
func causesFor(cd *ChangeDescription) []RenderCause {
	if cd == nil {
		return []RenderCause{CauseParentRendered}
	}
	if cd.IsFirstMount {
		return []RenderCause{CauseFirstMount}
	}

	var causes []RenderCause
	if len(cd.Props) > 0 {
		causes = append(causes, CausePropsChanged)
	}
	if len(cd.State) > 0 {
		causes = append(causes, CauseStateChanged)
	}
	if cd.DidHooksChange {
		causes = append(causes, CauseHooksChanged)
	}
	if len(causes) == 0 {
		causes = append(causes, CauseParentRendered)
	}
	return causes
}

// GetReport aggregates across every commit touching id. Returns nil when
// the component never rendered in-session (or no session exists).
func (p *Profiler) GetReport(id uint32, resolve NameFunc) *Report {
	if p.session == nil {
		return nil
	}

	report := &Report{ID: id, Name: p.resolveName(id, resolve)}
	seenCauses := make(map[RenderCause]bool)
	seenProps := make(map[string]bool)
	seenState := make(map[string]bool)
	seenHooks := make(map[int]bool)

	for _, c := range p.session.Commits {
		dur, touched := c.ActualDurations[id]
		if !touched {
			continue
		}
		report.RenderCount++
		report.TotalDuration += dur
		if dur > report.MaxDuration {
			report.MaxDuration = dur
		}

		cd := c.Changes[id]
		for _, cause := range causesFor(cd) {
			if !seenCauses[cause] {
				seenCauses[cause] = true
				report.Causes = append(report.Causes, cause)
			}
		}
		if cd != nil {
			for _, prop := range cd.Props {
				if !seenProps[prop] {
					seenProps[prop] = true
					report.ChangedKeys.Props = append(report.ChangedKeys.Props, prop)
				}
			}
			for _, key := range cd.State {
				if !seenState[key] {
					seenState[key] = true
					report.ChangedKeys.State = append(report.ChangedKeys.State, key)
				}
			}
			for _, hook := range cd.Hooks {
				if !seenHooks[hook] {
					seenHooks[hook] = true
					report.ChangedKeys.Hooks = append(report.ChangedKeys.Hooks, hook)
				}
			}
		}
	}

	if report.RenderCount == 0 {
		return nil
	}
	report.AvgDuration = report.TotalDuration / float64(report.RenderCount)
	return report
}

// renderedIDs collects every id appearing in any commit's actual-duration
// map, in ascending order.
func (p *Profiler) renderedIDs() []uint32 {
	seen := make(map[uint32]bool)
	var ids []uint32
	for _, c := range p.session.Commits {
		for id := range c.ActualDurations {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetSlowest returns up to limit reports sorted by avgDuration desc.
func (p *Profiler) GetSlowest(resolve NameFunc, limit int) []*Report {
	return p.rankedReports(resolve, limit, func(a, b *Report) bool {
		return a.AvgDuration > b.AvgDuration
	})
}

// GetMostRerenders returns up to limit reports sorted by renderCount desc.
func (p *Profiler) GetMostRerenders(resolve NameFunc, limit int) []*Report {
	return p.rankedReports(resolve, limit, func(a, b *Report) bool {
		return a.RenderCount > b.RenderCount
	})
}

func (p *Profiler) rankedReports(resolve NameFunc, limit int, less func(a, b *Report) bool) []*Report {
	if p.session == nil {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	var reports []*Report
	for _, id := range p.renderedIDs() {
		if r := p.GetReport(id, resolve); r != nil {
			reports = append(reports, r)
		}
	}
	sort.SliceStable(reports, func(i, j int) bool { return less(reports[i], reports[j]) })
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports
}

// TimelineEntry is one commit in session order.
type TimelineEntry struct {
	Index          int     `json:"index"`
	Timestamp      int64   `json:"timestamp"`
	Duration       float64 `json:"duration"`
	ComponentCount int     `json:"componentCount"`
}

// GetTimeline returns commits in order, truncated to limit when limit > 0.
func (p *Profiler) GetTimeline(limit int) []TimelineEntry {
	if p.session == nil {
		return nil
	}
	entries := make([]TimelineEntry, 0, len(p.session.Commits))
	for i, c := range p.session.Commits {
		entries = append(entries, TimelineEntry{
			Index:          i,
			Timestamp:      c.Timestamp,
			Duration:       c.Duration,
			ComponentCount: len(c.ActualDurations),
		})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// CommitComponent is one component's timings within a commit.
type CommitComponent struct {
	ID             uint32        `json:"id"`
	Name           string        `json:"name"`
	ActualDuration float64       `json:"actualDuration"`
	SelfDuration   float64       `json:"selfDuration"`
	Causes         []RenderCause `json:"causes"`
}

// CommitDetails describes one commit's per-component breakdown.
type CommitDetails struct {
	Index           int               `json:"index"`
	Timestamp       int64             `json:"timestamp"`
	Duration        float64           `json:"duration"`
	TotalComponents int               `json:"totalComponents"`
	Components      []CommitComponent `json:"components"`
}

// GetCommitDetails returns the per-component breakdown of commit index,
// sorted by selfDuration desc and truncated to limit. TotalComponents
// always reports the untruncated count.
func (p *Profiler) GetCommitDetails(index int, resolve NameFunc, limit int) (*CommitDetails, error) {
	if p.session == nil {
		return nil, ErrNoSession
	}
	if index < 0 || index >= len(p.session.Commits) {
		return nil, fmt.Errorf("%w: index %d of %d commits", ErrNoCommit, index, len(p.session.Commits))
	}
	if limit <= 0 {
		limit = 10
	}

	c := p.session.Commits[index]
	components := make([]CommitComponent, 0, len(c.ActualDurations))
	for id, actual := range c.ActualDurations {
		components = append(components, CommitComponent{
			ID:             id,
			Name:           p.resolveName(id, resolve),
			ActualDuration: actual,
			SelfDuration:   c.SelfDurations[id],
			Causes:         causesFor(c.Changes[id]),
		})
	}
	sort.Slice(components, func(i, j int) bool {
		if components[i].SelfDuration != components[j].SelfDuration {
			return components[i].SelfDuration > components[j].SelfDuration
		}
		return components[i].ID < components[j].ID
	})

	details := &CommitDetails{
		Index:           index,
		Timestamp:       c.Timestamp,
		Duration:        c.Duration,
		TotalComponents: len(components),
	}
	if len(components) > limit {
		components = components[:limit]
	}
	details.Components = components
	return details, nil
}
