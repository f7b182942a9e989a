// Package runtimebridge runs the single event loop that owns the subject
// registry. Host callbacks, HTTP commands and scene reloads all reach the
// registry through it.
package runtimebridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/slighter12/maya-livelink-go/logger"
	"github.com/slighter12/maya-livelink-go/metric"
	"github.com/slighter12/maya-livelink-go/registry"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/subject"
)

const (
	defaultValidationInterval = 5 * time.Second
	defaultEventBuffer        = 256
)

// Options tune the bridge loop.
type Options struct {
	// ValidationInterval drives pruning, viewport hook refresh and status
	// publication.
	ValidationInterval time.Duration
	// TickInterval is the stream timer period. Zero disables the timer.
	TickInterval time.Duration
	// Viewports attaches post-render sources. Nil disables viewport hooks.
	Viewports      TickerHost
	CommandTimeout time.Duration
	EventBuffer    int
	Metrics        *metric.Metrics
	Notify         NotificationSender
	Clock          func() time.Time
	Logger         *slog.Logger
}

// Bridge is the explicit context object handed to every host callback. It
// replaces process-wide provider and manager singletons.
type Bridge struct {
	env      subject.Env
	graph    *scene.Graph
	registry *registry.Registry
	hooks    *ViewportHooks
	store    *Store
	broker   *CommandBroker
	events   chan Event
	done     chan struct{}
	running  atomic.Bool

	validationInterval time.Duration
	tickInterval       time.Duration
	sender             NotificationSender
	now                func() time.Time
	log                *slog.Logger

	// loop-owned
	dirty      bool
	lastStatus string
	dropped    atomic.Uint64
}

// New builds a bridge over env. graph may be nil when the scene is not an
// in-memory graph; reload events are then ignored.
func New(env subject.Env, graph *scene.Graph, opts Options) *Bridge {
	if opts.ValidationInterval <= 0 {
		opts.ValidationInterval = defaultValidationInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Component("bridge")
	}

	done := make(chan struct{})
	b := &Bridge{
		env:                env,
		graph:              graph,
		store:              NewStore(3 * opts.ValidationInterval),
		broker:             NewCommandBroker(opts.CommandTimeout, done),
		events:             make(chan Event, opts.EventBuffer),
		done:               done,
		validationInterval: opts.ValidationInterval,
		tickInterval:       opts.TickInterval,
		sender:             opts.Notify,
		now:                opts.Clock,
		log:                opts.Logger,
	}
	b.registry = registry.New(env,
		registry.WithClock(opts.Clock),
		registry.WithMetrics(opts.Metrics),
		registry.WithOnChange(func() { b.dirty = true }),
	)
	if opts.Viewports != nil {
		b.hooks = NewViewportHooks(opts.Viewports, func(panel string) {
			b.Post(Event{Kind: EventPostRender, Panel: panel})
		})
	}
	b.publishSnapshot()
	return b
}

// Store exposes the latest published snapshot.
func (b *Bridge) Store() *Store {
	return b.store
}

// Post queues a host event without blocking. It reports false when the
// queue is full and the event was dropped.
func (b *Bridge) Post(ev Event) bool {
	select {
	case b.events <- ev:
		return true
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			b.log.Warn("Bridge event queue full, dropping", "event", ev.Kind.String(), "dropped", n)
		}
		return false
	}
}

// Do runs fn on the loop and waits for it.
func (b *Bridge) Do(ctx context.Context, name string, fn func(*registry.Registry) error) error {
	_, err := b.broker.DispatchAndWait(ctx, name, func(reg *registry.Registry) (any, error) {
		return nil, fn(reg)
	})
	return err
}

// Running reports whether Run is active.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Run processes events until ctx is cancelled. It must be called once.
func (b *Bridge) Run(ctx context.Context) error {
	b.running.Store(true)
	defer func() {
		b.hooks.Clear()
		b.running.Store(false)
		close(b.done)
	}()

	validate := time.NewTicker(b.validationInterval)
	defer validate.Stop()

	var tick <-chan time.Time
	if b.tickInterval > 0 {
		ticker := time.NewTicker(b.tickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	b.log.Info("Bridge loop started",
		"validation_interval", b.validationInterval.String(),
		"tick_interval", b.tickInterval.String())
	b.validate()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("Bridge loop stopped")
			return nil
		case ev := <-b.events:
			b.handle(ev)
		case cmd := <-b.broker.queue:
			// Events posted before the command are handled first, and the
			// caller sees the snapshot its command produced.
			b.drainEvents()
			reply := cmd.execute(b.registry)
			b.flush()
			reply()
		case <-tick:
			b.registry.Stream()
		case <-validate.C:
			b.validate()
		}
		b.flush()
	}
}

func (b *Bridge) flush() {
	if !b.dirty {
		return
	}
	b.dirty = false
	b.publishSnapshot()
	b.notify(NotifySubjectsChanged, map[string]any{"subjects": b.registry.Subjects()})
}

func (b *Bridge) drainEvents() {
	for {
		select {
		case ev := <-b.events:
			b.handle(ev)
		default:
			return
		}
	}
}

func (b *Bridge) handle(ev Event) {
	switch ev.Kind {
	case EventTimer, EventForceUpdate, EventPostRender:
		b.registry.Stream()
	case EventDAGChanged:
		b.registry.RebuildAll()
	case EventScenePreOpen:
		b.registry.Reset()
	case EventSceneReloaded:
		if b.graph == nil || ev.Graph == nil {
			return
		}
		b.graph.Replace(ev.Graph)
		b.log.Info("Scene reloaded", "nodes", len(b.graph.Paths()))
		b.registry.RebuildAll()
	default:
		b.log.Warn("Unknown bridge event", "kind", int(ev.Kind))
	}
}

// validate runs the periodic housekeeping: viewport hooks, pruning and the
// connection status.
func (b *Bridge) validate() {
	if b.hooks.Refresh(b.env.Scene.ViewportPanels()) {
		b.log.Debug("Viewport hooks refreshed", "panels", b.hooks.Len())
	}
	b.registry.ValidateAndPrune()

	status, connected := b.registry.ConnectionStatus()
	if status != b.lastStatus {
		b.lastStatus = status
		b.log.Info("Connection status changed", "status", status)
		b.notify(NotifyConnectionStatus, map[string]any{"status": status, "connected": connected})
	}
	b.publishSnapshot()
}

func (b *Bridge) publishSnapshot() {
	status, connected := b.registry.ConnectionStatus()
	b.store.Update(Snapshot{
		Subjects:    b.registry.Subjects(),
		Status:      status,
		Connected:   connected,
		Frame:       b.env.Scene.CurrentFrame(),
		SubjectSize: b.registry.Len(),
		Viewports:   b.hooks.Len(),
	}, b.now())
}
