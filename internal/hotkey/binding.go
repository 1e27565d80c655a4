package hotkey

import (
	"context"
)

// Edge is one key transition of a registered hotkey.
type Edge struct {
	Down bool
}

// Binding is a registered global hotkey.
type Binding interface {
	Spec() Spec
	Edges() <-chan Edge
	Close() error
}

// Route forwards edges from the record binding to the controller and
// keydowns of the optional cancel binding to Cancel, until ctx is done or
// the record binding closes.
func Route(ctx context.Context, c *Controller, record, cancel Binding) {
	var cancelEdges <-chan Edge
	if cancel != nil {
		cancelEdges = cancel.Edges()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-record.Edges():
			if !ok {
				return
			}
			if e.Down {
				c.Press()
			} else {
				c.Release()
			}
		case e, ok := <-cancelEdges:
			if !ok {
				cancelEdges = nil
				continue
			}
			if e.Down {
				c.Cancel()
			}
		}
	}
}
