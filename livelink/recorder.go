package livelink

import (
	"slices"
	"sync"
)

// EventKind tags a recorded transport call.
type EventKind string

const (
	EventSchema  EventKind = "schema"
	EventFrame   EventKind = "frame"
	EventRetract EventKind = "retract"
)

// Event is one transport call as seen by a Recorder.
type Event struct {
	Kind      EventKind
	SubjectID string
	Role      Role
	Schema    StaticSchema
	Frame     FrameSample
}

// Recorder is a Transport that keeps every call in memory. It copies the
// payload slices so callers may reuse their buffers.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	connected bool
}

// NewRecorder returns a recorder reporting the given connection state.
func NewRecorder(connected bool) *Recorder {
	return &Recorder{connected: connected}
}

func (r *Recorder) PublishSchema(subjectID string, role Role, schema StaticSchema) {
	schema.BoneNames = slices.Clone(schema.BoneNames)
	schema.BoneParents = slices.Clone(schema.BoneParents)
	r.append(Event{Kind: EventSchema, SubjectID: subjectID, Role: role, Schema: schema})
}

func (r *Recorder) PublishFrame(subjectID string, frame FrameSample) {
	frame.Transforms = slices.Clone(frame.Transforms)
	if frame.Camera != nil {
		lens := *frame.Camera
		frame.Camera = &lens
	}
	if frame.Light != nil {
		light := *frame.Light
		frame.Light = &light
	}
	r.append(Event{Kind: EventFrame, SubjectID: subjectID, Frame: frame})
}

func (r *Recorder) RetractSubject(subjectID string) {
	r.append(Event{Kind: EventRetract, SubjectID: subjectID})
}

func (r *Recorder) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// SetConnected changes what IsConnected reports.
func (r *Recorder) SetConnected(connected bool) {
	r.mu.Lock()
	r.connected = connected
	r.mu.Unlock()
}

func (r *Recorder) append(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// LastSchema returns the most recent schema published for subjectID.
func (r *Recorder) LastSchema(subjectID string) (Event, bool) {
	return r.last(subjectID, EventSchema)
}

// LastFrame returns the most recent frame published for subjectID.
func (r *Recorder) LastFrame(subjectID string) (Event, bool) {
	return r.last(subjectID, EventFrame)
}

func (r *Recorder) last(subjectID string, kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if e := r.events[i]; e.Kind == kind && e.SubjectID == subjectID {
			return e, true
		}
	}
	return Event{}, false
}

// Count returns how many events of kind were recorded for subjectID.
func (r *Recorder) Count(subjectID string, kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && e.SubjectID == subjectID {
			n++
		}
	}
	return n
}

type discard struct{}

func (discard) PublishSchema(string, Role, StaticSchema) {}
func (discard) PublishFrame(string, FrameSample)         {}
func (discard) RetractSubject(string)                    {}
func (discard) IsConnected() bool                        { return false }

// Discard is a Transport that drops everything. It stands in when no
// provider is configured.
var Discard Transport = discard{}

var _ Transport = (*Recorder)(nil)
