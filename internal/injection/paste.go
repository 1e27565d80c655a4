package injection

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// Paster sends the platform paste chord to the focused window.
type Paster interface {
	Paste(ctx context.Context) error
}

type keyboardPaster struct {
	mu sync.Mutex
	kb *keybd_event.KeyBonding
}

func NewKeyboardPaster() Paster { return &keyboardPaster{} }

func (p *keyboardPaster) bonding() (*keybd_event.KeyBonding, error) {
	if p.kb != nil {
		return p.kb, nil
	}
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	// uinput devices need a moment before the compositor accepts events
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	p.kb = &kb
	return p.kb, nil
}

func (p *keyboardPaster) Paste(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	kb, err := p.bonding()
	if err != nil {
		return err
	}
	if err := kb.Launching(); err != nil {
		return fmt.Errorf("send paste keys: %w", err)
	}
	return nil
}
