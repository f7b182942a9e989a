// Package registry owns the set of streamed subjects and drives their
// lifecycle: add, remove, rename, mode changes, validation and sampling.
//
// A Registry is not safe for concurrent use. The bridge event loop is its
// only caller.
package registry

import (
	"log/slog"
	"slices"
	"time"

	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/logger"
	"github.com/slighter12/maya-livelink-go/metric"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/subject"
)

// Connection status texts shown in the UI.
const (
	StatusConnected    = "Connected"
	StatusNoConnection = "No Connection"
	StatusNoProvider   = "No Provider"
)

// Row is one UI-visible subject.
type Row struct {
	Name  string   `json:"name"`
	Path  string   `json:"path"`
	Role  string   `json:"role"`
	Type  string   `json:"type"`
	Modes []string `json:"modes"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now for stream timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMetrics records registry activity.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithOnChange registers a callback fired whenever the UI-visible subject
// list may have changed.
func WithOnChange(fn func()) Option {
	return func(r *Registry) { r.onChange = fn }
}

// Registry holds subjects in insertion order. The active camera is always
// present.
type Registry struct {
	env      subject.Env
	subjects []subject.Subject

	now      func() time.Time
	start    time.Time
	metrics  *metric.Metrics
	onChange func()
	log      *slog.Logger
}

// New returns a registry holding only the active camera.
func New(env subject.Env, opts ...Option) *Registry {
	if env.Transport == nil {
		env.Transport = livelink.Discard
	}
	r := &Registry{
		env: env,
		now: time.Now,
		log: env.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Component("registry")
		r.env.Logger = r.log
	}
	r.start = r.now()
	r.Reset()
	return r
}

// Reset drops every subject and recreates the active camera. Called on
// scene-load boundaries.
func (r *Registry) Reset() {
	for _, s := range r.subjects {
		r.retract(s)
	}
	r.subjects = r.subjects[:0]
	r.insert(subject.NewActiveCamera(r.env))
	r.log.Info("Subject registry reset")
	r.changed()
}

// AddSubject creates a subject, publishes its schema and a first frame, and
// appends it. Identifier uniqueness is up to the caller.
func (r *Registry) AddSubject(kind subject.Kind, id, path string) error {
	s, err := subject.New(r.env, kind, id, path)
	if err != nil {
		return err
	}
	r.insert(s)
	r.log.Info("Subject added", "subject", id, "kind", kind.String(), "path", path)
	r.changed()
	return nil
}

func (r *Registry) insert(s subject.Subject) {
	s.RebuildSchema()
	worldTime, frame := r.clock()
	s.SampleFrame(worldTime, frame)
	r.subjects = append(r.subjects, s)
	r.metrics.SetSubjects(len(r.subjects))
}

// AddSelection adds a subject for each selected root. The first joint,
// camera or light found depth-first under a root wins; otherwise a
// transform root becomes a prop. It returns the identifiers added.
func (r *Registry) AddSelection(roots []string) []string {
	q := r.env.Scene
	var added []string
	for _, root := range roots {
		if !q.IsValid(root) {
			continue
		}

		found := false
		_ = q.WalkDAG(root, func(path string) bool {
			kind, ok := specificKind(q, path)
			if !ok {
				return true
			}
			if id := r.addNamed(kind, path); id != "" {
				added = append(added, id)
				found = true
			}
			return !found
		})

		if !found && q.HasFn(root, scene.FnTransform) {
			if id := r.addNamed(subject.KindProp, root); id != "" {
				added = append(added, id)
			}
		}
	}
	return added
}

func specificKind(q scene.Query, path string) (subject.Kind, bool) {
	switch {
	case q.HasFn(path, scene.FnJoint):
		return subject.KindJointHierarchy, true
	case q.HasFn(path, scene.FnCamera):
		return subject.KindCamera, true
	case q.HasFn(path, scene.FnLight):
		return subject.KindLight, true
	}
	return 0, false
}

func (r *Registry) addNamed(kind subject.Kind, path string) string {
	name, err := r.env.Scene.Name(path)
	if err != nil {
		name = scene.BaseName(path)
	}
	if err := r.AddSubject(kind, name, path); err != nil {
		r.log.Warn("Failed to add selected subject", "path", path, "error", err)
		return ""
	}
	return name
}

// RemoveSubject removes the UI-visible subject rooted at path. Unknown paths
// are ignored. It reports whether a subject was removed.
func (r *Registry) RemoveSubject(path string) bool {
	i := r.indexByPath(path)
	if i < 0 {
		return false
	}
	s := r.subjects[i]
	r.subjects = slices.Delete(r.subjects, i, i+1)
	r.retract(s)
	r.metrics.SetSubjects(len(r.subjects))
	r.log.Info("Subject removed", "subject", s.ID(), "path", path)
	r.changed()
	return true
}

// RenameSubject recreates the subject at path under newName. The new kind
// comes from the node's current scene type, not the old subject's kind.
func (r *Registry) RenameSubject(path, newName string) bool {
	i := r.indexByPath(path)
	if i < 0 {
		return false
	}
	rootPath := r.subjects[i].Path()
	r.RemoveSubject(path)

	kind := subject.KindForNode(r.env.Scene, rootPath)
	if err := r.AddSubject(kind, newName, rootPath); err != nil {
		r.log.Warn("Failed to recreate renamed subject", "path", rootPath, "error", err)
		return false
	}
	return true
}

// ChangeStreamMode forwards to the subject at path. It reports false for an
// unknown path or a mode the subject rejects.
func (r *Registry) ChangeStreamMode(path, mode string) bool {
	i := r.indexByPath(path)
	if i < 0 {
		return false
	}
	if !r.subjects[i].SetStreamMode(mode) {
		return false
	}
	r.changed()
	return true
}

// ValidateAndPrune removes every subject whose scene node no longer
// resolves and returns how many were removed. The change callback fires
// only when something was pruned; it runs every validation tick and an
// unchanged list needs no UI refresh.
func (r *Registry) ValidateAndPrune() int {
	kept := r.subjects[:0]
	var pruned []subject.Subject
	for _, s := range r.subjects {
		if s.IsStillValid() {
			kept = append(kept, s)
			continue
		}
		pruned = append(pruned, s)
	}
	clear(r.subjects[len(kept):])
	r.subjects = kept

	for _, s := range pruned {
		r.retract(s)
		r.log.Info("Subject pruned", "subject", s.ID(), "path", s.Path())
	}
	r.metrics.RecordPruned(len(pruned))
	r.metrics.SetSubjects(len(r.subjects))
	if len(pruned) > 0 {
		r.changed()
	}
	return len(pruned)
}

// RebuildAll prunes and then republishes every surviving schema.
func (r *Registry) RebuildAll() {
	r.ValidateAndPrune()
	for _, s := range r.subjects {
		s.RebuildSchema()
	}
	r.log.Debug("Rebuilt subject schemas", "subjects", len(r.subjects))
}

// StreamAll samples every subject in insertion order.
func (r *Registry) StreamAll(worldTime float64, frame int32) {
	started := time.Now()
	for _, s := range r.subjects {
		s.SampleFrame(worldTime, frame)
	}
	r.metrics.ObserveSweep(time.Since(started))
}

// Stream samples every subject at the current clock and scene frame.
func (r *Registry) Stream() {
	worldTime, frame := r.clock()
	r.StreamAll(worldTime, frame)
}

func (r *Registry) clock() (float64, int32) {
	return r.now().Sub(r.start).Seconds(), r.env.Scene.CurrentFrame()
}

// Subjects lists the UI-visible subjects in registry order.
func (r *Registry) Subjects() []Row {
	rows := make([]Row, 0, len(r.subjects))
	for _, s := range r.subjects {
		if !s.ShouldListInUI() {
			continue
		}
		modes := s.Modes()
		labels := make([]string, len(modes))
		for i, m := range modes {
			labels[i] = m.Label()
		}
		rows = append(rows, Row{
			Name:  s.ID(),
			Path:  s.Path(),
			Role:  s.StreamMode().Label(),
			Type:  s.Kind().Label(),
			Modes: labels,
		})
	}
	return rows
}

// Find returns the subject with the given identifier, including the active
// camera.
func (r *Registry) Find(id string) (subject.Subject, bool) {
	for _, s := range r.subjects {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Len counts every subject, including the active camera.
func (r *Registry) Len() int {
	return len(r.subjects)
}

// ConnectionStatus reports the UI status text and whether a consumer is
// connected.
func (r *Registry) ConnectionStatus() (string, bool) {
	if r.env.Transport == livelink.Discard {
		return StatusNoProvider, false
	}
	if r.env.Transport.IsConnected() {
		return StatusConnected, true
	}
	return StatusNoConnection, false
}

func (r *Registry) indexByPath(path string) int {
	for i, s := range r.subjects {
		if s.ShouldListInUI() && s.Path() == path {
			return i
		}
	}
	return -1
}

func (r *Registry) retract(s subject.Subject) {
	s.Retract()
	r.metrics.RecordRetract()
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}
