package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/reactwatch/ipc"
	"github.com/hazyhaar/reactwatch/profiler"
)

// handleCommand is the IPC dispatch. Every command runs to completion
// before its response is written; inspect, profile-stop, and wait are the
// only handlers that block.
func (d *Daemon) handleCommand(ctx context.Context, req ipc.Request) ipc.Response {
	start := time.Now()
	resp := d.dispatch(ctx, req)

	if d.audit != nil {
		var cmdErr error
		if !resp.OK {
			cmdErr = errors.New(resp.Error)
		}
		d.audit.LogAsync(d.audit.NewEntry(
			ipc.GetRequestID(ctx), req.Type, json.RawMessage(req.Raw), cmdErr, time.Since(start)))
	}
	return resp
}

func (d *Daemon) dispatch(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Type {
	case "ping":
		return ipc.Response{OK: true, Data: map[string]bool{"pong": true}}
	case "status":
		return d.cmdStatus()
	case "get-tree":
		return d.cmdGetTree(req)
	case "get-component":
		return d.cmdGetComponent(ctx, req)
	case "find":
		return d.cmdFind(req)
	case "count":
		return d.cmdCount()
	case "profile-start":
		return d.cmdProfileStart(req)
	case "profile-stop":
		return d.cmdProfileStop()
	case "profile-report":
		return d.cmdProfileReport(req)
	case "profile-slow":
		return d.cmdProfileRanked(req, d.prof.GetSlowest)
	case "profile-rerenders":
		return d.cmdProfileRanked(req, d.prof.GetMostRerenders)
	case "profile-timeline":
		return d.cmdProfileTimeline(req)
	case "profile-commit":
		return d.cmdProfileCommit(req)
	case "wait":
		return d.cmdWait(ctx, req)
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("Unknown command: %s", req.Type)}
	}
}

func (d *Daemon) cmdStatus() ipc.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := d.health.snapshot()
	return ipc.Response{OK: true, Data: map[string]any{
		"daemonRunning":   true,
		"port":            d.cfg.Port,
		"connectedApps":   snap.ConnectedApps,
		"componentCount":  d.tree.Size(),
		"profilingActive": d.prof.Active(),
		"uptime":          time.Since(d.startedAt).Milliseconds(),
		"connection":      snap,
	}}
}

func (d *Daemon) cmdGetTree(req ipc.Request) ipc.Response {
	var params struct {
		Depth *int `json:"depth"`
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}
	depth := -1
	if params.Depth != nil {
		depth = *params.Depth
	}

	d.mu.Lock()
	entries := d.tree.Flatten(depth)
	var hint string
	if len(entries) == 0 {
		if ago, ok := d.health.recentDisconnect(time.Now()); ok {
			hint = fmt.Sprintf("app disconnected %s ago, waiting for reconnect...", agoHuman(ago))
		}
	}
	d.mu.Unlock()

	return ipc.Response{OK: true, Data: entries, Hint: hint}
}

func (d *Daemon) cmdGetComponent(ctx context.Context, req ipc.Request) ipc.Response {
	ref, isLabel, err := parseRef(req.Raw, "id")
	if err != nil {
		return ipc.Response{OK: false, Error: err.Error()}
	}

	d.mu.Lock()
	id, ok := d.tree.ResolveRef(ref)
	var rendererID uint32
	var label string
	if ok {
		if n := d.tree.GetNode(id); n != nil {
			rendererID = n.RendererID
		} else {
			ok = false
		}
		if isLabel {
			label = ref
		}
	}
	d.mu.Unlock()

	if !ok {
		return ipc.Response{OK: false, Error: fmt.Sprintf("Component %s not found", ref)}
	}

	// Round trip to the runtime. This suspends the handler, not the daemon:
	// operations and other commands keep flowing while we wait.
	elem := d.br.InspectElement(ctx, id, rendererID, d.cfg.InspectTimeout)
	if elem == nil {
		return ipc.Response{OK: false, Error: fmt.Sprintf("Component %d not found", id), Label: label}
	}
	return ipc.Response{OK: true, Data: elem, Label: label}
}

func (d *Daemon) cmdFind(req ipc.Request) ipc.Response {
	var params struct {
		Name  string `json:"name"`
		Exact bool   `json:"exact"`
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}
	if params.Name == "" {
		return ipc.Response{OK: false, Error: "find requires a name"}
	}

	d.mu.Lock()
	entries := d.tree.FindByName(params.Name, params.Exact)
	d.mu.Unlock()
	return ipc.Response{OK: true, Data: entries}
}

func (d *Daemon) cmdCount() ipc.Response {
	d.mu.Lock()
	counts := d.tree.GetCountByKind()
	total := d.tree.Size()
	d.mu.Unlock()
	return ipc.Response{OK: true, Data: map[string]any{
		"total":  total,
		"byKind": counts,
	}}
}

func (d *Daemon) cmdProfileStart(req ipc.Request) ipc.Response {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}

	d.mu.Lock()
	sess := d.prof.Start(params.Name, d.tree.DisplayNames())
	d.mu.Unlock()

	d.br.StartProfiling()
	return ipc.Response{OK: true, Data: map[string]any{
		"name":      sess.Name,
		"startedAt": sess.StartedAt.UnixMilli(),
	}}
}

func (d *Daemon) cmdProfileStop() ipc.Response {
	d.mu.Lock()
	active := d.prof.Active()
	d.mu.Unlock()
	if !active {
		return ipc.Response{OK: false, Error: "no active profiling session"}
	}

	// Broadcast stop and drain trailing profilingData before finalising.
	d.br.StopProfilingAndCollect(d.cfg.StopGrace)

	d.mu.Lock()
	summary, err := d.prof.Stop(d.resolveNameLocked)
	d.mu.Unlock()
	if err != nil {
		return ipc.Response{OK: false, Error: "no active profiling session"}
	}
	return ipc.Response{OK: true, Data: summary}
}

func (d *Daemon) cmdProfileReport(req ipc.Request) ipc.Response {
	ref, _, err := parseRef(req.Raw, "componentId")
	if err != nil {
		return ipc.Response{OK: false, Error: err.Error()}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.prof.Session() == nil {
		return ipc.Response{OK: false, Error: "no profiling session"}
	}
	id, ok := d.tree.ResolveRef(ref)
	if !ok {
		return ipc.Response{OK: false, Error: fmt.Sprintf("Component %s not found", ref)}
	}
	report := d.prof.GetReport(id, d.resolveNameLocked)
	if report == nil {
		return ipc.Response{OK: false, Error: fmt.Sprintf("Component %d never rendered in this session", id)}
	}
	return ipc.Response{OK: true, Data: report}
}

func (d *Daemon) cmdProfileRanked(req ipc.Request, rank func(profiler.NameFunc, int) []*profiler.Report) ipc.Response {
	var params struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.prof.Session() == nil {
		return ipc.Response{OK: false, Error: "no profiling session"}
	}
	reports := rank(d.resolveNameLocked, params.Limit)
	if reports == nil {
		reports = []*profiler.Report{}
	}
	return ipc.Response{OK: true, Data: reports}
}

func (d *Daemon) cmdProfileTimeline(req ipc.Request) ipc.Response {
	var params struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.prof.Session() == nil {
		return ipc.Response{OK: false, Error: "no profiling session"}
	}
	entries := d.prof.GetTimeline(params.Limit)
	if entries == nil {
		entries = []profiler.TimelineEntry{}
	}
	return ipc.Response{OK: true, Data: entries}
}

func (d *Daemon) cmdProfileCommit(req ipc.Request) ipc.Response {
	var params struct {
		Index *int `json:"index"`
		Limit int  `json:"limit"`
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}
	if params.Index == nil {
		return ipc.Response{OK: false, Error: "profile-commit requires an index"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	details, err := d.prof.GetCommitDetails(*params.Index, d.resolveNameLocked, params.Limit)
	if err != nil {
		if errors.Is(err, profiler.ErrNoSession) {
			return ipc.Response{OK: false, Error: "no profiling session"}
		}
		return ipc.Response{OK: false, Error: fmt.Sprintf("Commit %d not found", *params.Index)}
	}
	return ipc.Response{OK: true, Data: details}
}

func (d *Daemon) cmdWait(ctx context.Context, req ipc.Request) ipc.Response {
	var params struct {
		Condition string `json:"condition"`
		Name      string `json:"name"`
		Timeout   int64  `json:"timeout"` // ms
	}
	if err := json.Unmarshal(req.Raw, &params); err != nil {
		return ipc.Response{OK: false, Error: "Invalid JSON"}
	}

	switch params.Condition {
	case WaitConnected:
	case WaitComponent:
		if params.Name == "" {
			return ipc.Response{OK: false, Error: "wait condition \"component\" requires a name"}
		}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("Unknown wait condition: %s", params.Condition)}
	}

	timeout := d.cfg.WaitTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}

	w := &waiter{condition: params.Condition, name: params.Name, met: make(chan struct{}, 1)}

	d.mu.Lock()
	if d.waitMetLocked(params.Condition, params.Name) {
		d.mu.Unlock()
		return waitResponse(params.Condition)
	}
	d.waits.add(w)
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.met:
		return waitResponse(params.Condition)
	case <-timer.C:
	case <-ctx.Done():
	}

	d.mu.Lock()
	d.waits.remove(w)
	d.mu.Unlock()

	// Losing the race is fine: a signal that landed while the timer fired
	// still reports met.
	select {
	case <-w.met:
		return waitResponse(params.Condition)
	default:
	}
	return ipc.Response{OK: true, Data: map[string]any{
		"met":       false,
		"condition": params.Condition,
		"timeout":   true,
	}}
}

// waitMetLocked evaluates a wait predicate immediately at registration.
func (d *Daemon) waitMetLocked(condition, name string) bool {
	switch condition {
	case WaitConnected:
		return d.health.live > 0
	case WaitComponent:
		for _, e := range d.tree.FindByName(name, true) {
			if e.DisplayName == name {
				return true
			}
		}
	}
	return false
}

func waitResponse(condition string) ipc.Response {
	return ipc.Response{OK: true, Data: map[string]any{
		"met":       true,
		"condition": condition,
	}}
}

// parseRef extracts a component reference field that may be a number or a
// string (numeric or "@cN" label).
func parseRef(raw json.RawMessage, field string) (ref string, isLabel bool, err error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", false, errors.New("Invalid JSON")
	}
	value, ok := generic[field]
	if !ok {
		return "", false, fmt.Errorf("missing %s", field)
	}

	var num float64
	if err := json.Unmarshal(value, &num); err == nil {
		return fmt.Sprintf("%d", int64(num)), false, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, len(s) > 0 && s[0] == '@', nil
	}
	return "", false, fmt.Errorf("invalid %s", field)
}

// agoHuman renders a duration the way a human reads it in a hint.
func agoHuman(d time.Duration) string {
	switch {
	case d < time.Second:
		return "moments"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
