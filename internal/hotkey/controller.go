package hotkey

import (
	"fmt"
	"sync"
	"time"
)

type Mode string

const (
	// ModeHold records while the hotkey is held down.
	ModeHold Mode = "hold"
	// ModeToggle starts on one press and stops on the next.
	ModeToggle Mode = "toggle"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeHold, ModeToggle:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid trigger mode %q (must be hold or toggle)", s)
	}
}

const DefaultDebounce = 150 * time.Millisecond

// Handler receives the signals a Controller derives from key edges.
type Handler interface {
	Start()
	Stop()
	Cancel()
}

// Controller turns press and release edges into at most one Start per
// recording and exactly one Stop or Cancel after it. Handler methods are
// invoked without holding the controller lock, so a handler may call Reset.
type Controller struct {
	mode     Mode
	debounce time.Duration
	handler  Handler
	now      func() time.Time

	mu       sync.Mutex
	active   bool
	lastEdge time.Time
}

func NewController(mode Mode, debounce time.Duration, h Handler) *Controller {
	return &Controller{mode: mode, debounce: debounce, handler: h, now: time.Now}
}

func (c *Controller) Mode() Mode { return c.mode }

// Active reports whether the controller believes a recording is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

type signal int

const (
	none signal = iota
	start
	stop
	cancel
)

func (c *Controller) Press() {
	c.mu.Lock()
	var sig signal
	switch {
	case c.bouncing():
	case !c.active:
		sig = c.begin()
	case c.mode == ModeToggle:
		sig = c.end(stop)
	}
	c.mu.Unlock()
	c.dispatch(sig)
}

func (c *Controller) Release() {
	c.mu.Lock()
	var sig signal
	if c.mode == ModeHold && c.active {
		sig = c.end(stop)
	}
	c.mu.Unlock()
	c.dispatch(sig)
}

// Toggle flips the recording state regardless of mode.
func (c *Controller) Toggle() {
	c.mu.Lock()
	var sig signal
	switch {
	case c.bouncing():
	case c.active:
		sig = c.end(stop)
	default:
		sig = c.begin()
	}
	c.mu.Unlock()
	c.dispatch(sig)
}

// Cancel aborts a recording. It is forwarded even when no recording is
// active so a result still being processed can be discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.end(cancel)
	c.mu.Unlock()
	c.dispatch(cancel)
}

// Reset marks the recording as ended without signalling the handler. Used
// when the session stops on its own.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func (c *Controller) bouncing() bool {
	return c.debounce > 0 && !c.lastEdge.IsZero() && c.now().Sub(c.lastEdge) < c.debounce
}

func (c *Controller) begin() signal {
	c.active = true
	c.lastEdge = c.now()
	return start
}

func (c *Controller) end(sig signal) signal {
	c.active = false
	c.lastEdge = c.now()
	return sig
}

func (c *Controller) dispatch(sig signal) {
	switch sig {
	case start:
		c.handler.Start()
	case stop:
		c.handler.Stop()
	case cancel:
		c.handler.Cancel()
	}
}
