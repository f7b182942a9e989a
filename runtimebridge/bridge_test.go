package runtimebridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/registry"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/subject"
)

const bridgeScene = `
active_camera: "|persp"
viewports: [modelPanel1, modelPanel4]
nodes:
  - name: persp
    children:
      - name: perspShape
        type: camera
  - name: crate
    translate: [1, 0, 0]
  - name: hips
    type: joint
`

type fakeHost struct {
	mu       sync.Mutex
	attached map[string]func()
	detached int
}

func (h *fakeHost) Attach(panel string, fire func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached == nil {
		h.attached = map[string]func(){}
	}
	h.attached[panel] = fire
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.attached, panel)
		h.detached++
	}
}

func (h *fakeHost) fire(panel string) bool {
	h.mu.Lock()
	fn, ok := h.attached[panel]
	h.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type notifications struct {
	mu      sync.Mutex
	methods []string
}

func (n *notifications) send(method string, _ map[string]any) bool {
	n.mu.Lock()
	n.methods = append(n.methods, method)
	n.mu.Unlock()
	return true
}

func (n *notifications) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.methods {
		if m == method {
			c++
		}
	}
	return c
}

type harness struct {
	bridge *Bridge
	graph  *scene.Graph
	rec    *livelink.Recorder
	host   *fakeHost
	notes  *notifications
	stop   func()
}

func startBridge(t *testing.T) *harness {
	t.Helper()
	g, err := scene.Parse([]byte(bridgeScene))
	if err != nil {
		t.Fatalf("parse scene: %v", err)
	}
	h := &harness{
		graph: g,
		rec:   livelink.NewRecorder(false),
		host:  &fakeHost{},
		notes: &notifications{},
	}
	h.bridge = New(subject.Env{Scene: g, Transport: h.rec}, g, Options{
		ValidationInterval: time.Hour,
		Viewports:          h.host,
		CommandTimeout:     2 * time.Second,
		Notify:             h.notes.send,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.bridge.Run(ctx)
	}()
	h.stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(h.stop)

	// Wait until the loop has run its first validation.
	h.sync(t)
	return h
}

// sync waits for every previously posted event to be handled.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	if err := h.bridge.Do(context.Background(), "sync", func(*registry.Registry) error { return nil }); err != nil {
		t.Fatalf("sync with loop: %v", err)
	}
}

func TestBridgeCommandsRunOnLoop(t *testing.T) {
	h := startBridge(t)

	rows, err := Call(context.Background(), h.bridge, "add", func(reg *registry.Registry) ([]string, error) {
		return reg.AddSelection([]string{"|crate"}), nil
	})
	if err != nil {
		t.Fatalf("add selection: %v", err)
	}
	if len(rows) != 1 || rows[0] != "crate" {
		t.Fatalf("expected crate added, got %v", rows)
	}

	stored, ok := h.bridge.Store().Latest()
	if !ok || len(stored.Snapshot.Subjects) != 1 {
		t.Fatalf("expected snapshot with one subject, got %+v", stored)
	}
	if h.notes.count(NotifySubjectsChanged) == 0 {
		t.Fatal("expected subjects changed notification")
	}

	wantErr := errors.New("boom")
	if err := h.bridge.Do(context.Background(), "fail", func(*registry.Registry) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected command error to propagate, got %v", err)
	}
}

func TestBridgeRenderEventsStream(t *testing.T) {
	h := startBridge(t)
	if h.bridge.hooks.Len() != 2 {
		t.Fatalf("expected 2 viewport hooks, got %d", h.bridge.hooks.Len())
	}
	before := h.rec.Count(subject.ActiveCameraID, livelink.EventFrame)

	if !h.host.fire("modelPanel4") {
		t.Fatal("expected hook for modelPanel4")
	}
	h.bridge.Post(Event{Kind: EventForceUpdate})
	h.sync(t)

	if got := h.rec.Count(subject.ActiveCameraID, livelink.EventFrame) - before; got != 2 {
		t.Fatalf("expected 2 new active camera frames, got %d", got)
	}
}

func TestBridgeScenePreOpenResets(t *testing.T) {
	h := startBridge(t)
	if err := h.bridge.Do(context.Background(), "add", func(reg *registry.Registry) error {
		return reg.AddSubject(subject.KindProp, "Crate", "|crate")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	h.bridge.Post(Event{Kind: EventScenePreOpen})
	n, err := Call(context.Background(), h.bridge, "len", func(reg *registry.Registry) (int, error) {
		return reg.Len(), nil
	})
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only active camera after pre-open, got %d", n)
	}
}

func TestBridgeSceneReloadPrunesAndRebuilds(t *testing.T) {
	h := startBridge(t)
	if err := h.bridge.Do(context.Background(), "add", func(reg *registry.Registry) error {
		if err := reg.AddSubject(subject.KindProp, "Crate", "|crate"); err != nil {
			return err
		}
		return reg.AddSubject(subject.KindJointHierarchy, "Hips", "|hips")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	next, err := scene.Parse([]byte("nodes:\n  - name: hips\n    type: joint\n    children:\n      - name: spine\n        type: joint\n"))
	if err != nil {
		t.Fatalf("parse next scene: %v", err)
	}
	h.bridge.Post(Event{Kind: EventSceneReloaded, Graph: next})
	h.sync(t)

	if h.rec.Count("Crate", livelink.EventRetract) != 1 {
		t.Fatal("expected crate pruned after reload")
	}
	schema, _ := h.rec.LastSchema("Hips")
	if len(schema.Schema.BoneNames) != 2 {
		t.Fatalf("expected rebuilt skeleton with spine, got %+v", schema.Schema)
	}
}

func TestBridgeViewportHooksFollowPanelCount(t *testing.T) {
	h := startBridge(t)

	h.graph.SetViewportPanels([]string{"modelPanel1"})
	if err := h.bridge.Do(context.Background(), "validate", func(*registry.Registry) error {
		h.bridge.validate()
		return nil
	}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if h.bridge.hooks.Len() != 1 || h.host.detached != 2 {
		t.Fatalf("expected hooks rebuilt for one panel, got len=%d detached=%d", h.bridge.hooks.Len(), h.host.detached)
	}
}

func TestBridgeConnectionStatusNotification(t *testing.T) {
	h := startBridge(t)
	if h.notes.count(NotifyConnectionStatus) != 1 {
		t.Fatalf("expected initial status notification, got %d", h.notes.count(NotifyConnectionStatus))
	}

	h.rec.SetConnected(true)
	if err := h.bridge.Do(context.Background(), "validate", func(*registry.Registry) error {
		h.bridge.validate()
		return nil
	}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if h.notes.count(NotifyConnectionStatus) != 2 {
		t.Fatal("expected notification on status change")
	}
	stored, _ := h.bridge.Store().Latest()
	if stored.Snapshot.Status != registry.StatusConnected || !stored.Snapshot.Connected {
		t.Fatalf("expected connected snapshot, got %+v", stored.Snapshot)
	}
}

func TestBridgeStoppedRejectsCommands(t *testing.T) {
	h := startBridge(t)
	h.stop()

	err := h.bridge.Do(context.Background(), "late", func(*registry.Registry) error { return nil })
	if !errors.Is(err, ErrBridgeStopped) {
		t.Fatalf("expected ErrBridgeStopped, got %v", err)
	}
	if h.bridge.Running() {
		t.Fatal("expected bridge to report stopped")
	}
	if h.bridge.hooks.Len() != 0 {
		t.Fatal("expected hooks cleared on stop")
	}
}

func TestCommandTimeoutWithoutLoop(t *testing.T) {
	g := scene.NewGraph()
	b := New(subject.Env{Scene: g}, g, Options{CommandTimeout: 20 * time.Millisecond})

	err := b.Do(context.Background(), "orphan", func(*registry.Registry) error { return nil })
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
}

func TestPostDropsWhenQueueFull(t *testing.T) {
	g := scene.NewGraph()
	b := New(subject.Env{Scene: g}, g, Options{EventBuffer: 1})

	if !b.Post(Event{Kind: EventTimer}) {
		t.Fatal("expected first post to be queued")
	}
	if b.Post(Event{Kind: EventTimer}) {
		t.Fatal("expected second post to be dropped")
	}
}
