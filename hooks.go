package propgate

import (
	"sync"

	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/release"
)

// Hook function types.
type (
	// AlertHook is called for every alert a monitoring cycle raises.
	AlertHook func(alert monitor.Alert)

	// ItemAppliedHook is called after a record is written to production.
	ItemAppliedHook func(item release.ItemResult)

	// ReleaseFinishedHook is called once a release run ends, whatever its status.
	ReleaseFinishedHook func(result *release.Result)
)

// Hooks registers event callbacks.
type Hooks interface {
	OnAlert(fn AlertHook)
	OnItemApplied(fn ItemAppliedHook)
	OnReleaseFinished(fn ReleaseFinishedHook)
}

// hooks manages event callbacks.
type hooks struct {
	mu                sync.RWMutex
	onAlert           []AlertHook
	onItemApplied     []ItemAppliedHook
	onReleaseFinished []ReleaseFinishedHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnAlert registers a callback for monitoring alerts.
func (h *hooks) OnAlert(fn AlertHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAlert = append(h.onAlert, fn)
}

// OnItemApplied registers a callback for applied records.
func (h *hooks) OnItemApplied(fn ItemAppliedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onItemApplied = append(h.onItemApplied, fn)
}

// OnReleaseFinished registers a callback for finished release runs.
func (h *hooks) OnReleaseFinished(fn ReleaseFinishedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReleaseFinished = append(h.onReleaseFinished, fn)
}

func (h *hooks) triggerAlert(a monitor.Alert) {
	h.mu.RLock()
	fns := append([]AlertHook(nil), h.onAlert...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(a)
	}
}

func (h *hooks) triggerItemApplied(it release.ItemResult) {
	h.mu.RLock()
	fns := append([]ItemAppliedHook(nil), h.onItemApplied...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(it)
	}
}

func (h *hooks) triggerReleaseFinished(res *release.Result) {
	h.mu.RLock()
	fns := append([]ReleaseFinishedHook(nil), h.onReleaseFinished...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(res)
	}
}

// OnAlert registers a callback for monitoring alerts.
func (c *client) OnAlert(fn AlertHook) {
	c.hooks.OnAlert(fn)
}

// OnItemApplied registers a callback for records written to production.
func (c *client) OnItemApplied(fn ItemAppliedHook) {
	c.hooks.OnItemApplied(fn)
}

// OnReleaseFinished registers a callback for finished releases.
func (c *client) OnReleaseFinished(fn ReleaseFinishedHook) {
	c.hooks.OnReleaseFinished(fn)
}
