package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/metric"
)

func nextEnvelope(t *testing.T, sub *Subscriber) Envelope {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscriber queue closed")
		}
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.Fatalf("decode %s message: %v", msg.Type, err)
		}
		if env.Type != msg.Type {
			t.Fatalf("message type %q does not match envelope type %q", msg.Type, env.Type)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hub message")
	}
	return Envelope{}
}

func assertQueueEmpty(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected %s message: %s", msg.Type, msg.Data)
	default:
	}
}

func TestHubReplaysSchemasBeforeFrames(t *testing.T) {
	hub := NewHub("Maya Live Link", 8, nil)

	hub.PublishSchema("Crate", livelink.RoleTransform, livelink.StaticSchema{})
	hub.PublishSchema("Hips", livelink.RoleAnimation, livelink.StaticSchema{
		BoneNames:   []string{"hips", "spine"},
		BoneParents: []int32{-1, 0},
	})
	// Nobody is listening yet.
	hub.PublishFrame("Crate", livelink.FrameSample{FrameNumber: 1})

	sub := hub.Subscribe("sse")
	defer hub.Unsubscribe(sub)

	hello := nextEnvelope(t, sub)
	if hello.Type != MessageHello || hello.Provider != "Maya Live Link" || hello.SubscriberID != sub.ID {
		t.Fatalf("unexpected hello: %+v", hello)
	}
	first := nextEnvelope(t, sub)
	second := nextEnvelope(t, sub)
	if first.Subject != "Crate" || second.Subject != "Hips" {
		t.Fatalf("expected schemas in publish order, got %q then %q", first.Subject, second.Subject)
	}
	if second.Role != livelink.RoleAnimation || len(second.Schema.BoneNames) != 2 {
		t.Fatalf("unexpected animation schema: %+v", second)
	}
	assertQueueEmpty(t, sub)

	hub.PublishFrame("Hips", livelink.FrameSample{FrameNumber: 7, Transforms: make([]livelink.Transform, 2)})
	frame := nextEnvelope(t, sub)
	if frame.Type != MessageFrame || frame.Frame.FrameNumber != 7 || len(frame.Frame.Transforms) != 2 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestHubRepublishKeepsOrderAndRetractForgets(t *testing.T) {
	hub := NewHub("p", 8, nil)
	hub.PublishSchema("A", livelink.RoleTransform, livelink.StaticSchema{})
	hub.PublishSchema("B", livelink.RoleCamera, livelink.StaticSchema{Camera: &livelink.CameraCapabilities{FieldOfView: true}})
	hub.PublishSchema("A", livelink.RoleTransform, livelink.StaticSchema{})

	if got := hub.CachedSubjects(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("expected [A B], got %v", got)
	}

	hub.RetractSubject("A")
	if got := hub.CachedSubjects(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected [B] after retract, got %v", got)
	}

	sub := hub.Subscribe("websocket")
	defer hub.Unsubscribe(sub)
	nextEnvelope(t, sub)
	schema := nextEnvelope(t, sub)
	if schema.Subject != "B" || schema.Schema.Camera == nil || !schema.Schema.Camera.FieldOfView {
		t.Fatalf("unexpected replayed schema: %+v", schema)
	}
	assertQueueEmpty(t, sub)
}

func TestHubDropsForSlowSubscriberOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metric.NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	hub := NewHub("p", 1, m)

	slow := hub.Subscribe("sse")
	defer hub.Unsubscribe(slow)
	fast := hub.Subscribe("sse")
	defer hub.Unsubscribe(fast)
	nextEnvelope(t, fast)

	hub.PublishFrame("A", livelink.FrameSample{FrameNumber: 1})
	nextEnvelope(t, fast)
	hub.PublishFrame("A", livelink.FrameSample{FrameNumber: 2})
	nextEnvelope(t, fast)

	if slow.Dropped() != 1 {
		t.Fatalf("expected slow subscriber to drop one frame, got %d", slow.Dropped())
	}
	if fast.Dropped() != 0 {
		t.Fatalf("expected fast subscriber to drop nothing, got %d", fast.Dropped())
	}
	if got := testutil.ToFloat64(m.FramesDropped); got != 1 {
		t.Fatalf("expected 1 dropped frame recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.Subscribers); got != 2 {
		t.Fatalf("expected subscriber gauge 2, got %v", got)
	}
}

func TestHubDisconnectsSlowSubscriberInsteadOfDroppingSchema(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metric.NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	hub := NewHub("p", 1, m)

	slow := hub.Subscribe("websocket")
	defer hub.Unsubscribe(slow)
	hub.PublishFrame("Hips", livelink.FrameSample{FrameNumber: 1})
	hub.PublishFrame("Hips", livelink.FrameSample{FrameNumber: 2})

	skeleton := livelink.StaticSchema{
		BoneNames:   []string{"hips", "spine", "head"},
		BoneParents: []int32{-1, 0, 1},
	}
	hub.PublishSchema("Hips", livelink.RoleAnimation, skeleton)
	hub.PublishFrame("Hips", livelink.FrameSample{FrameNumber: 3})

	if env := nextEnvelope(t, slow); env.Type != MessageHello {
		t.Fatalf("expected hello first, got %q", env.Type)
	}
	if env := nextEnvelope(t, slow); env.Type != MessageFrame || env.Frame.FrameNumber != 1 {
		t.Fatalf("expected the queued frame, got %+v", env)
	}
	select {
	case msg, ok := <-slow.Messages():
		if ok {
			t.Fatalf("expected closed queue after the schema could not be queued, got %s", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the queue to close")
	}

	if hub.IsConnected() {
		t.Fatal("expected the slow subscriber to be disconnected")
	}
	if got := testutil.ToFloat64(m.Subscribers); got != 0 {
		t.Fatalf("expected subscriber gauge 0, got %v", got)
	}

	again := hub.Subscribe("websocket")
	defer hub.Unsubscribe(again)
	nextEnvelope(t, again)
	env := nextEnvelope(t, again)
	if env.Type != MessageSchema || env.Subject != "Hips" || len(env.Schema.BoneNames) != 3 {
		t.Fatalf("expected the skeleton schema replayed on resubscribe, got %+v", env)
	}
	assertQueueEmpty(t, again)
}

func TestHubNotifyAndConnection(t *testing.T) {
	hub := NewHub("p", 4, nil)
	if hub.IsConnected() {
		t.Fatal("expected disconnected hub without subscribers")
	}
	if hub.Notify("subjectsChanged", map[string]any{"subjects": []string{}}) {
		t.Fatal("expected notify without subscribers to report false")
	}

	sub := hub.Subscribe("sse")
	if !hub.IsConnected() {
		t.Fatal("expected connected hub")
	}
	nextEnvelope(t, sub)

	if !hub.Notify("connectionStatusChanged", map[string]any{"status": "Active"}) {
		t.Fatal("expected notify to reach subscriber")
	}
	env := nextEnvelope(t, sub)
	if env.Type != MessageNotification || env.Notification == nil || env.Notification.Method != "connectionStatusChanged" {
		t.Fatalf("unexpected notification envelope: %+v", env)
	}

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	if _, ok := <-sub.Messages(); ok {
		t.Fatal("expected closed queue after unsubscribe")
	}
	if hub.IsConnected() {
		t.Fatal("expected disconnected hub after unsubscribe")
	}
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub("p", 4, nil)
	a := hub.Subscribe("sse")
	b := hub.Subscribe("websocket")

	infos := hub.Subscribers()
	if len(infos) != 2 {
		t.Fatalf("expected two subscribers, got %+v", infos)
	}

	hub.Close()
	if len(hub.Subscribers()) != 0 {
		t.Fatal("expected no subscribers after close")
	}
	for _, sub := range []*Subscriber{a, b} {
		for range sub.Messages() {
		}
	}
}
