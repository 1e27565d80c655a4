package injection

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

type systemClipboard struct{}

// NewSystemClipboard uses the platform clipboard (pbcopy, the Win32 API,
// or xclip/xsel/wl-clipboard on Linux).
func NewSystemClipboard() Clipboard { return systemClipboard{} }

func (systemClipboard) Read() (string, error) { return clipboard.ReadAll() }

func (systemClipboard) Write(text string) error { return clipboard.WriteAll(text) }

type waylandClipboard struct {
	timeout time.Duration
}

// NewWaylandClipboard drives wl-copy and wl-paste directly.
func NewWaylandClipboard(timeout time.Duration) Clipboard {
	return &waylandClipboard{timeout: timeout}
}

func (w *waylandClipboard) Read() (string, error) {
	if err := checkWaylandClipboard(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, "wl-paste", "--no-newline").Output()
	if err != nil {
		return "", fmt.Errorf("wl-paste failed: %w", err)
	}
	return string(output), nil
}

func (w *waylandClipboard) Write(text string) error {
	if err := checkWaylandClipboard(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "wl-copy")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wl-copy failed: %w", err)
	}
	return nil
}

func checkWaylandClipboard() error {
	if _, err := exec.LookPath("wl-copy"); err != nil {
		return fmt.Errorf("wl-copy not found: %w (install wl-clipboard)", err)
	}
	if _, err := exec.LookPath("wl-paste"); err != nil {
		return fmt.Errorf("wl-paste not found: %w (install wl-clipboard)", err)
	}
	return nil
}
