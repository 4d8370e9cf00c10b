package daemon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/reactwatch/ipc"
	"github.com/hazyhaar/reactwatch/profiler"
	"github.com/hazyhaar/reactwatch/tree"
	"github.com/hazyhaar/reactwatch/wall"
)

// newTestDaemon builds a Daemon without binding any listener: command
// handlers and bridge callbacks are exercised directly.
func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testConfig(t)
	cfg.StopGrace = 10 * time.Millisecond
	d := New(cfg)
	d.startedAt = time.Now()
	return d
}

func request(t *testing.T, line string) ipc.Request {
	t.Helper()
	var req ipc.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		t.Fatal(err)
	}
	req.Raw = []byte(line)
	return req
}

func (d *Daemon) exec(t *testing.T, line string) ipc.Response {
	t.Helper()
	return d.handleCommand(context.Background(), request(t, line))
}

func addRoot(id uint32) wall.Op {
	return wall.Op{Kind: wall.OpAddRoot, ID: id}
}

func addNode(id, parent uint32, name string) wall.Op {
	return wall.Op{Kind: wall.OpAdd, ID: id, ParentID: parent, DisplayName: name, Element: wall.KindFunction}
}

func (d *Daemon) feed(connID string, rootID uint32, ops ...wall.Op) {
	d.onOperations(connID, &wall.Batch{RendererID: 1, RootID: rootID, Ops: ops})
}

func TestPingAndUnknown(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.exec(t, `{"type":"ping"}`)
	if !resp.OK {
		t.Errorf("ping: %+v", resp)
	}

	resp = d.exec(t, `{"type":"frobnicate"}`)
	if resp.OK || resp.Error != "Unknown command: frobnicate" {
		t.Errorf("unknown: %+v", resp)
	}
}

func TestGetTreeDepthAndLabels(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100,
		addRoot(100),
		addNode(1, 100, "App"),
		addNode(2, 1, "Shell"),
	)

	resp := d.exec(t, `{"type":"get-tree"}`)
	entries := resp.Data.([]tree.FlatEntry)
	if len(entries) != 3 {
		t.Fatalf("entries: %d", len(entries))
	}
	if entries[0].Label != "@c1" || entries[2].Label != "@c3" {
		t.Errorf("labels: %s %s", entries[0].Label, entries[2].Label)
	}

	resp = d.exec(t, `{"type":"get-tree","depth":0}`)
	if entries := resp.Data.([]tree.FlatEntry); len(entries) != 1 {
		t.Errorf("depth 0: %d entries", len(entries))
	}
	resp = d.exec(t, `{"type":"get-tree","depth":1}`)
	if entries := resp.Data.([]tree.FlatEntry); len(entries) != 2 {
		t.Errorf("depth 1: %d entries", len(entries))
	}
}

func TestGetTreeDisconnectHint(t *testing.T) {
	d := newTestDaemon(t)

	// Empty tree, no history: no hint.
	resp := d.exec(t, `{"type":"get-tree"}`)
	if resp.Hint != "" {
		t.Errorf("hint without history: %q", resp.Hint)
	}

	d.onConnect("conn_a")
	d.feed("conn_a", 100, addRoot(100))
	d.onDisconnect("conn_a", []uint32{100})

	resp = d.exec(t, `{"type":"get-tree"}`)
	if len(resp.Data.([]tree.FlatEntry)) != 0 {
		t.Fatal("tree not empty after disconnect")
	}
	if !strings.HasPrefix(resp.Hint, "app disconnected ") ||
		!strings.HasSuffix(resp.Hint, "ago, waiting for reconnect...") {
		t.Errorf("hint: %q", resp.Hint)
	}
}

func TestFindCommand(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100,
		addRoot(100),
		addNode(1, 100, "User"),
		addNode(2, 100, "UserCard"),
		addNode(3, 100, "UserProfile"),
	)

	resp := d.exec(t, `{"type":"find","name":"user"}`)
	if got := resp.Data.([]tree.FlatEntry); len(got) != 3 {
		t.Errorf("fuzzy: %d", len(got))
	}

	resp = d.exec(t, `{"type":"find","name":"User","exact":true}`)
	got := resp.Data.([]tree.FlatEntry)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("exact: %+v", got)
	}

	resp = d.exec(t, `{"type":"find"}`)
	if resp.OK {
		t.Error("find without name accepted")
	}
}

func TestCountCommand(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100, addRoot(100), addNode(1, 100, "App"))

	resp := d.exec(t, `{"type":"count"}`)
	data := resp.Data.(map[string]any)
	if data["total"].(int) != 2 {
		t.Errorf("total: %v", data["total"])
	}
	byKind := data["byKind"].(map[wall.ElementKind]int)
	if byKind[wall.KindFunction] != 1 || byKind[wall.KindOther] != 1 {
		t.Errorf("byKind: %v", byKind)
	}
}

func TestGetComponentNotFound(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.exec(t, `{"type":"get-component","id":3}`)
	if resp.OK || resp.Error != "Component 3 not found" {
		t.Errorf("unknown id: %+v", resp)
	}

	// Known node but no connected backend: inspect resolves nil without
	// waiting out the timeout.
	d.feed("conn_a", 100, addRoot(100), addNode(3, 100, "Widget"))
	start := time.Now()
	resp = d.exec(t, `{"type":"get-component","id":3}`)
	if resp.OK || resp.Error != "Component 3 not found" {
		t.Errorf("no-peer inspect: %+v", resp)
	}
	if time.Since(start) > time.Second {
		t.Error("no-peer inspect waited")
	}
}

func TestGetComponentLabelEcho(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100, addRoot(100), addNode(1, 100, "App"))
	d.exec(t, `{"type":"get-tree"}`)

	resp := d.exec(t, `{"type":"get-component","id":"@c2"}`)
	// No backend: the inspection fails, but the label still echoes.
	if resp.Label != "@c2" {
		t.Errorf("label echo: %+v", resp)
	}
}

func TestStatusShape(t *testing.T) {
	d := newTestDaemon(t)
	d.onConnect("conn_a")
	d.feed("conn_a", 100, addRoot(100), addNode(1, 100, "App"))

	resp := d.exec(t, `{"type":"status"}`)
	data := resp.Data.(map[string]any)
	if data["daemonRunning"] != true || data["port"].(int) != d.cfg.Port {
		t.Errorf("status: %+v", data)
	}
	if data["connectedApps"].(int) != 1 || data["componentCount"].(int) != 2 {
		t.Errorf("status counts: %+v", data)
	}
	if data["profilingActive"].(bool) {
		t.Error("profiling active without session")
	}

	conn := data["connection"].(HealthSnapshot)
	if conn.ConnectedApps != 1 || !conn.HasEverConnected || len(conn.RecentEvents) != 1 {
		t.Errorf("connection: %+v", conn)
	}
}

func TestDisconnectRemovesOwnedRootsOnly(t *testing.T) {
	d := newTestDaemon(t)
	d.onConnect("conn_a")
	d.onConnect("conn_b")
	d.feed("conn_a", 100,
		addRoot(100),
		addNode(1, 100, "A1"), addNode(2, 1, "A2"), addNode(3, 1, "A3"), addNode(4, 3, "A4"),
	)
	d.feed("conn_b", 200,
		addRoot(200),
		addNode(10, 200, "B1"), addNode(11, 10, "B2"),
	)

	d.onDisconnect("conn_a", []uint32{100})

	resp := d.exec(t, `{"type":"get-tree"}`)
	entries := resp.Data.([]tree.FlatEntry)
	if len(entries) != 3 {
		t.Fatalf("entries after disconnect: %d", len(entries))
	}
	for _, e := range entries {
		if e.ID != 200 && e.ID != 10 && e.ID != 11 {
			t.Errorf("survivor from wrong root: %+v", e)
		}
	}

	status := d.exec(t, `{"type":"status"}`).Data.(map[string]any)
	if status["connectedApps"].(int) != 1 {
		t.Errorf("connectedApps: %v", status["connectedApps"])
	}
}

func profilingPayload(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestProfileLifecycle(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100, addRoot(100), addNode(1, 100, "App"), addNode(2, 1, "List"))

	resp := d.exec(t, `{"type":"profile-stop"}`)
	if resp.OK || resp.Error != "no active profiling session" {
		t.Errorf("stop without session: %+v", resp)
	}

	resp = d.exec(t, `{"type":"profile-start","name":"checkout"}`)
	if !resp.OK {
		t.Fatalf("start: %+v", resp)
	}

	d.onProfilingData(profilingPayload(t, `{
		"commitData": [{
			"timestamp": 1700000000000, "duration": 12.5,
			"fiberActualDurations": [[1, 10], [2, 5]],
			"fiberSelfDurations": [[1, 4], [2, 5]],
			"changeDescriptions": [[1, {"props": ["x"]}], [2, {"isFirstMount": true}]]
		}]
	}`))

	report := d.exec(t, `{"type":"profile-report","componentId":1}`)
	if !report.OK {
		t.Fatalf("report: %+v", report)
	}
	r := report.Data.(*profiler.Report)
	if r.RenderCount != 1 || r.TotalDuration != 10 || r.Causes[0] != profiler.CausePropsChanged {
		t.Errorf("report: %+v", r)
	}

	slow := d.exec(t, `{"type":"profile-slow","limit":1}`)
	if got := slow.Data.([]*profiler.Report); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("slowest: %+v", got)
	}

	timeline := d.exec(t, `{"type":"profile-timeline"}`)
	if got := timeline.Data.([]profiler.TimelineEntry); len(got) != 1 || got[0].ComponentCount != 2 {
		t.Errorf("timeline: %+v", got)
	}

	commit := d.exec(t, `{"type":"profile-commit","index":0}`)
	if !commit.OK {
		t.Fatalf("commit: %+v", commit)
	}
	details := commit.Data.(*profiler.CommitDetails)
	if details.TotalComponents != 2 || details.Components[0].ID != 2 {
		t.Errorf("commit details: %+v", details)
	}

	missing := d.exec(t, `{"type":"profile-commit","index":9}`)
	if missing.OK || missing.Error != "Commit 9 not found" {
		t.Errorf("missing commit: %+v", missing)
	}

	stop := d.exec(t, `{"type":"profile-stop"}`)
	if !stop.OK {
		t.Fatalf("stop: %+v", stop)
	}
	summary := stop.Data.(*profiler.Summary)
	if summary.Name != "checkout" || summary.CommitCount != 1 || len(summary.PerComponent) != 2 {
		t.Errorf("summary: %+v", summary)
	}
}

func TestProfileReportNeverRendered(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100, addRoot(100), addNode(1, 100, "App"))

	resp := d.exec(t, `{"type":"profile-report","componentId":1}`)
	if resp.OK || resp.Error != "no profiling session" {
		t.Errorf("report without session: %+v", resp)
	}

	d.exec(t, `{"type":"profile-start"}`)
	resp = d.exec(t, `{"type":"profile-report","componentId":1}`)
	if resp.OK || !strings.Contains(resp.Error, "never rendered") {
		t.Errorf("report without renders: %+v", resp)
	}
}

func TestWaitConnectedImmediate(t *testing.T) {
	d := newTestDaemon(t)
	d.onConnect("conn_a")

	resp := d.exec(t, `{"type":"wait","condition":"connected","timeout":1000}`)
	data := resp.Data.(map[string]any)
	if data["met"] != true || data["condition"] != "connected" {
		t.Errorf("immediate wait: %+v", data)
	}
}

func TestWaitComponentSignalled(t *testing.T) {
	d := newTestDaemon(t)

	result := make(chan ipc.Response, 1)
	go func() {
		result <- d.exec(t, `{"type":"wait","condition":"component","name":"Counter","timeout":5000}`)
	}()

	// Give the waiter time to register, then mount the component.
	time.Sleep(50 * time.Millisecond)
	d.feed("conn_a", 100, addRoot(100), addNode(7, 100, "Counter"))

	select {
	case resp := <-result:
		data := resp.Data.(map[string]any)
		if data["met"] != true || data["condition"] != "component" {
			t.Errorf("signalled wait: %+v", data)
		}
		if _, hasTimeout := data["timeout"]; hasTimeout {
			t.Error("met wait carries timeout flag")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait never resolved")
	}
}

func TestWaitTimeout(t *testing.T) {
	d := newTestDaemon(t)

	start := time.Now()
	resp := d.exec(t, `{"type":"wait","condition":"component","name":"Ghost","timeout":100}`)
	if time.Since(start) < 100*time.Millisecond {
		t.Error("wait returned before its timeout")
	}
	data := resp.Data.(map[string]any)
	if data["met"] != false || data["timeout"] != true {
		t.Errorf("timeout wait: %+v", data)
	}

	// The expired waiter is deregistered.
	d.mu.Lock()
	pending := len(d.waits.waiters)
	d.mu.Unlock()
	if pending != 0 {
		t.Errorf("waiters leaked: %d", pending)
	}
}

func TestWaitValidation(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.exec(t, `{"type":"wait","condition":"component"}`)
	if resp.OK {
		t.Error("component wait without name accepted")
	}
	resp = d.exec(t, `{"type":"wait","condition":"nonsense"}`)
	if resp.OK {
		t.Error("unknown condition accepted")
	}
}

func TestWaitComponentCaseSensitive(t *testing.T) {
	d := newTestDaemon(t)
	d.feed("conn_a", 100, addRoot(100), addNode(1, 100, "counter"))

	// Exact case-sensitive match: "Counter" is not met by "counter".
	resp := d.exec(t, `{"type":"wait","condition":"component","name":"Counter","timeout":100}`)
	data := resp.Data.(map[string]any)
	if data["met"] != false {
		t.Errorf("case-insensitive match leaked through: %+v", data)
	}
}
