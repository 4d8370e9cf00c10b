package profiler

import (
	"encoding/json"
	"errors"
	"testing"
)

// jsonPayload decodes a JSON literal into the any-typed shape the bridge
// hands to ProcessPayload.
func jsonPayload(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func startSession(t *testing.T, names map[uint32]string) *Profiler {
	t.Helper()
	p := New()
	p.Start("test", names)
	return p
}

func TestStartReplacesSession(t *testing.T) {
	p := New()
	first := p.Start("one", nil)
	second := p.Start("two", nil)
	if first == second || p.Session() != second {
		t.Error("second Start did not replace the session")
	}
	if !p.Active() {
		t.Error("session not active after Start")
	}
}

func TestStopWithoutSession(t *testing.T) {
	p := New()
	if _, err := p.Stop(nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
}

func TestProcessPayloadFlatTuples(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [{
			"timestamp": 1700000000000,
			"duration": 12.5,
			"fiberActualDurations": [[1, 10], [2, 5]],
			"fiberSelfDurations": [[1, 4], [2, 5]],
			"changeDescriptions": [[1, {"props": ["x"]}], [2, {"isFirstMount": true}]]
		}]
	}`))

	s := p.Session()
	if len(s.Commits) != 1 {
		t.Fatalf("commits: got %d, want 1", len(s.Commits))
	}
	c := s.Commits[0]
	if c.ActualDurations[1] != 10 || c.ActualDurations[2] != 5 {
		t.Errorf("actual durations: %v", c.ActualDurations)
	}
	if c.SelfDurations[1] != 4 {
		t.Errorf("self durations: %v", c.SelfDurations)
	}
	if c.Changes[1] == nil || len(c.Changes[1].Props) != 1 || c.Changes[1].Props[0] != "x" {
		t.Errorf("change descriptions: %+v", c.Changes[1])
	}
	if c.Changes[2] == nil || !c.Changes[2].IsFirstMount {
		t.Errorf("first mount flag lost: %+v", c.Changes[2])
	}
}

func TestProcessPayloadNestedInterleaved(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"dataForRoots": [
			{"commitData": [{
				"timestamp": 1,
				"duration": 3,
				"fiberActualDurations": [1, 10, 2, 5],
				"fiberSelfDurations": [1, 4, 2, 5],
				"changeDescriptions": {"1": {"didHooksChange": true}}
			}]},
			{"commitData": [{
				"timestamp": 2,
				"duration": 1,
				"fiberActualDurations": [[3, 7]],
				"fiberSelfDurations": [[3, 7]]
			}]}
		]
	}`))

	s := p.Session()
	if len(s.Commits) != 2 {
		t.Fatalf("commits: got %d, want 2", len(s.Commits))
	}
	if s.Commits[0].ActualDurations[2] != 5 {
		t.Errorf("interleaved durations: %v", s.Commits[0].ActualDurations)
	}
	if cd := s.Commits[0].Changes[1]; cd == nil || !cd.DidHooksChange {
		t.Errorf("map-shaped change descriptions: %+v", cd)
	}
}

func TestProcessPayloadNoSessionDropped(t *testing.T) {
	p := New()
	p.ProcessPayload(jsonPayload(t, `{"commitData": [{"timestamp": 1, "duration": 1}]}`))
	if p.Session() != nil {
		t.Error("payload without session created one")
	}
}

func TestCauseDerivation(t *testing.T) {
	cases := []struct {
		name string
		cd   *ChangeDescription
		want []RenderCause
	}{
		{"nil falls back to parent", nil, []RenderCause{CauseParentRendered}},
		{"first mount wins alone", &ChangeDescription{IsFirstMount: true, Props: []string{"x"}, DidHooksChange: true}, []RenderCause{CauseFirstMount}},
		{"props", &ChangeDescription{Props: []string{"x"}}, []RenderCause{CausePropsChanged}},
		{"state", &ChangeDescription{State: []string{"count"}}, []RenderCause{CauseStateChanged}},
		{"hooks", &ChangeDescription{DidHooksChange: true}, []RenderCause{CauseHooksChanged}},
		{"all three", &ChangeDescription{Props: []string{"x"}, State: []string{"s"}, DidHooksChange: true},
			[]RenderCause{CausePropsChanged, CauseStateChanged, CauseHooksChanged}},
		{"nothing → parent rendered", &ChangeDescription{}, []RenderCause{CauseParentRendered}},
	}

	for _, tc := range cases {
		got := causesFor(tc.cd)
		if len(got) != len(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			}
		}
	}
}

func TestGetReportAggregation(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [{
			"timestamp": 1, "duration": 12.5,
			"fiberActualDurations": [[1, 10], [2, 5]],
			"fiberSelfDurations": [[1, 4], [2, 5]],
			"changeDescriptions": [[1, {"props": ["x"]}], [2, {"isFirstMount": true}]]
		}]
	}`))

	r := p.GetReport(1, nil)
	if r == nil {
		t.Fatal("no report for component 1")
	}
	if r.RenderCount != 1 || r.TotalDuration != 10 || r.AvgDuration != 10 || r.MaxDuration != 10 {
		t.Errorf("report 1: %+v", r)
	}
	if len(r.Causes) != 1 || r.Causes[0] != CausePropsChanged {
		t.Errorf("report 1 causes: %v", r.Causes)
	}
	if len(r.ChangedKeys.Props) != 1 || r.ChangedKeys.Props[0] != "x" {
		t.Errorf("report 1 changed keys: %+v", r.ChangedKeys)
	}

	r2 := p.GetReport(2, nil)
	if len(r2.Causes) != 1 || r2.Causes[0] != CauseFirstMount {
		t.Errorf("report 2 causes: %v", r2.Causes)
	}

	if p.GetReport(99, nil) != nil {
		t.Error("report for component that never rendered")
	}
}

func TestGetReportMultiCommit(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [
			{"timestamp": 1, "duration": 10,
			 "fiberActualDurations": [[1, 10]],
			 "changeDescriptions": [[1, {"props": ["a"]}]]},
			{"timestamp": 2, "duration": 6,
			 "fiberActualDurations": [[1, 6]],
			 "changeDescriptions": [[1, {"props": ["a", "b"], "state": ["s"]}]]}
		]
	}`))

	r := p.GetReport(1, nil)
	if r.RenderCount != 2 || r.TotalDuration != 16 || r.AvgDuration != 8 || r.MaxDuration != 10 {
		t.Errorf("aggregate: %+v", r)
	}
	wantProps := []string{"a", "b"}
	if len(r.ChangedKeys.Props) != 2 || r.ChangedKeys.Props[0] != wantProps[0] || r.ChangedKeys.Props[1] != wantProps[1] {
		t.Errorf("changed props: %v", r.ChangedKeys.Props)
	}
	if len(r.Causes) != 2 || r.Causes[0] != CausePropsChanged || r.Causes[1] != CauseStateChanged {
		t.Errorf("cause union: %v", r.Causes)
	}
}

func TestGetSlowestAndRerenders(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [
			{"timestamp": 1, "duration": 15,
			 "fiberActualDurations": [[1, 10], [2, 5]],
			 "fiberSelfDurations": [[1, 4], [2, 5]]},
			{"timestamp": 2, "duration": 2,
			 "fiberActualDurations": [[2, 2]],
			 "fiberSelfDurations": [[2, 2]]}
		]
	}`))

	slowest := p.GetSlowest(nil, 1)
	if len(slowest) != 1 || slowest[0].ID != 1 {
		t.Errorf("slowest: %+v", slowest)
	}

	rerenders := p.GetMostRerenders(nil, 10)
	if len(rerenders) != 2 || rerenders[0].ID != 2 || rerenders[0].RenderCount != 2 {
		t.Errorf("rerenders: %+v", rerenders)
	}
}

func TestStopSummaryAndNameFallbacks(t *testing.T) {
	p := startSession(t, map[uint32]string{1: "SnapshotName", 2: "Widget"})
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [
			{"timestamp": 1, "duration": 5, "fiberActualDurations": [[1, 3], [2, 1], [3, 1]]},
			{"timestamp": 2, "duration": 2, "fiberActualDurations": [[2, 2]]}
		]
	}`))

	live := func(id uint32) (string, bool) {
		if id == 2 {
			return "LiveWidget", true
		}
		return "", false
	}

	summary, err := p.Stop(live)
	if err != nil {
		t.Fatal(err)
	}
	if summary.CommitCount != 2 {
		t.Errorf("commit count: %d", summary.CommitCount)
	}
	if len(summary.PerComponent) != 3 {
		t.Fatalf("per-component rows: %d", len(summary.PerComponent))
	}
	// Sorted by count desc: component 2 rendered twice.
	if summary.PerComponent[0].ID != 2 || summary.PerComponent[0].Name != "LiveWidget" {
		t.Errorf("row 0: %+v", summary.PerComponent[0])
	}

	byID := make(map[uint32]ComponentRender)
	for _, row := range summary.PerComponent {
		byID[row.ID] = row
	}
	if byID[1].Name != "SnapshotName" {
		t.Errorf("snapshot fallback: %+v", byID[1])
	}
	if byID[3].Name != "Component#3" {
		t.Errorf("synthetic fallback: %+v", byID[3])
	}

	if p.Active() {
		t.Error("session still active after Stop")
	}
}

func TestTimeline(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [
			{"timestamp": 100, "duration": 5, "fiberActualDurations": [[1, 3], [2, 1]]},
			{"timestamp": 200, "duration": 2, "fiberActualDurations": [[2, 2]]},
			{"timestamp": 300, "duration": 1, "fiberActualDurations": [[1, 1]]}
		]
	}`))

	entries := p.GetTimeline(0)
	if len(entries) != 3 {
		t.Fatalf("timeline: %d entries", len(entries))
	}
	if entries[0].Index != 0 || entries[0].Timestamp != 100 || entries[0].ComponentCount != 2 {
		t.Errorf("entry 0: %+v", entries[0])
	}

	if got := p.GetTimeline(2); len(got) != 2 {
		t.Errorf("limited timeline: %d entries", len(got))
	}
}

func TestCommitDetails(t *testing.T) {
	p := startSession(t, nil)
	p.ProcessPayload(jsonPayload(t, `{
		"commitData": [{
			"timestamp": 100, "duration": 9,
			"fiberActualDurations": [[1, 6], [2, 3], [3, 1]],
			"fiberSelfDurations": [[1, 1], [2, 3], [3, 1]],
			"changeDescriptions": [[2, {"isFirstMount": true}]]
		}]
	}`))

	details, err := p.GetCommitDetails(0, nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if details.TotalComponents != 3 {
		t.Errorf("total components: %d", details.TotalComponents)
	}
	if len(details.Components) != 2 {
		t.Fatalf("truncated components: %d", len(details.Components))
	}
	// Sorted by selfDuration desc.
	if details.Components[0].ID != 2 || details.Components[0].Causes[0] != CauseFirstMount {
		t.Errorf("component 0: %+v", details.Components[0])
	}

	if _, err := p.GetCommitDetails(5, nil, 10); !errors.Is(err, ErrNoCommit) {
		t.Errorf("out-of-range index: %v", err)
	}
}
