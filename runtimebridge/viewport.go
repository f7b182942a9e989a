package runtimebridge

import "time"

// TickerHost attaches a post-render source to one viewport panel. The
// returned function detaches it.
type TickerHost interface {
	Attach(panel string, fire func()) (detach func())
}

// RenderTicker simulates viewport redraws with a fixed-rate ticker per
// panel.
type RenderTicker struct {
	Interval time.Duration
}

func (r RenderTicker) Attach(panel string, fire func()) func() {
	if r.Interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fire()
			}
		}
	}()
	return func() { close(stop) }
}

// ViewportHooks keeps one post-render hook per viewport panel. It is only
// used from the bridge loop.
type ViewportHooks struct {
	host   TickerHost
	post   func(panel string)
	detach []func()
	panels []string
}

func NewViewportHooks(host TickerHost, post func(panel string)) *ViewportHooks {
	return &ViewportHooks{host: host, post: post}
}

// Refresh re-registers every hook when the panel count differs from the
// hook count. It reports whether hooks were rebuilt.
func (h *ViewportHooks) Refresh(panels []string) bool {
	if h == nil || h.host == nil || len(panels) == len(h.detach) {
		return false
	}
	h.Clear()
	for _, panel := range panels {
		h.detach = append(h.detach, h.host.Attach(panel, func() { h.post(panel) }))
		h.panels = append(h.panels, panel)
	}
	return true
}

// Clear detaches every hook.
func (h *ViewportHooks) Clear() {
	if h == nil {
		return
	}
	for _, detach := range h.detach {
		detach()
	}
	h.detach = h.detach[:0]
	h.panels = h.panels[:0]
}

// Len is the number of registered hooks.
func (h *ViewportHooks) Len() int {
	if h == nil {
		return 0
	}
	return len(h.detach)
}

// Panels lists the panels currently hooked.
func (h *ViewportHooks) Panels() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.panels...)
}
