// Package system registers global hotkeys with the operating system.
//
// On macOS the caller must run the program through mainthread.Init.
package system

import (
	"fmt"
	"sync"

	xhotkey "golang.design/x/hotkey"

	"github.com/uttertype/uttertype/internal/hotkey"
)

type binding struct {
	spec  hotkey.Spec
	hk    *xhotkey.Hotkey
	edges chan hotkey.Edge
	done  chan struct{}
	once  sync.Once
}

// Register grabs spec globally. Fails when another program holds the
// combination or when no display server is reachable.
func Register(spec hotkey.Spec) (hotkey.Binding, error) {
	key, ok := keys[spec.Key]
	if !ok {
		return nil, fmt.Errorf("key %q has no system key code", spec.Key)
	}
	mods := make([]xhotkey.Modifier, 0, len(spec.Modifiers))
	for _, m := range spec.Modifiers {
		mod, ok := modifiers[m]
		if !ok {
			return nil, fmt.Errorf("modifier %q is not supported on this platform", m)
		}
		mods = append(mods, mod)
	}

	hk := xhotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register hotkey %s: %w", spec, err)
	}

	b := &binding{
		spec:  spec,
		hk:    hk,
		edges: make(chan hotkey.Edge, 8),
		done:  make(chan struct{}),
	}
	go b.forward()
	return b, nil
}

func (b *binding) forward() {
	defer close(b.edges)
	down, up := b.hk.Keydown(), b.hk.Keyup()
	for {
		var e hotkey.Edge
		select {
		case <-b.done:
			return
		case <-down:
			e.Down = true
		case <-up:
		}
		select {
		case b.edges <- e:
		case <-b.done:
			return
		}
	}
}

func (b *binding) Spec() hotkey.Spec { return b.spec }

func (b *binding) Edges() <-chan hotkey.Edge { return b.edges }

func (b *binding) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		err = b.hk.Unregister()
	})
	return err
}
