package injection

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/logging"
)

const (
	ModeType      = "type"
	ModePaste     = "paste"
	ModeClipboard = "clipboard"

	ClipboardSystem  = "system"
	ClipboardWayland = "wayland"
)

// Injector interface for text injection
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Config for text injection
type Config struct {
	Mode             string   // "type", "paste", "clipboard"
	Backends         []string // typing backends tried in order
	Clipboard        string   // "system" or "wayland"
	RestoreClipboard bool
	RestoreDelay     time.Duration // wait before restoring so the paste lands first
	TypeTimeout      time.Duration
	ClipboardTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:             ModePaste,
		Backends:         DefaultBackends(runtime.GOOS),
		Clipboard:        ClipboardSystem,
		RestoreClipboard: true,
		RestoreDelay:     150 * time.Millisecond,
		TypeTimeout:      5 * time.Second,
		ClipboardTimeout: 3 * time.Second,
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeType, ModePaste, ModeClipboard:
	default:
		return fmt.Errorf("invalid mode: %s (must be type, paste, or clipboard)", c.Mode)
	}
	switch c.Clipboard {
	case ClipboardSystem, ClipboardWayland:
	default:
		return fmt.Errorf("invalid clipboard: %s (must be system or wayland)", c.Clipboard)
	}
	for _, b := range c.Backends {
		if _, ok := typers[b]; !ok {
			return fmt.Errorf("invalid backend: %s (must be one of %s)", b, strings.Join(BackendNames(), ", "))
		}
	}
	if c.Mode == ModeType && !slices.ContainsFunc(c.Backends, func(b string) bool { return SupportsOS(b, hostOS) }) {
		if len(defaultBackends[hostOS]) == 0 {
			return fmt.Errorf("type mode is not supported on %s, use paste or clipboard mode", hostOS)
		}
		return fmt.Errorf("type mode needs a backend that runs on %s (%s), or use paste or clipboard mode",
			hostOS, strings.Join(defaultBackends[hostOS], ", "))
	}
	if c.TypeTimeout <= 0 {
		return fmt.Errorf("invalid type timeout: %v", c.TypeTimeout)
	}
	if c.ClipboardTimeout <= 0 {
		return fmt.Errorf("invalid clipboard timeout: %v", c.ClipboardTimeout)
	}
	if c.RestoreDelay < 0 {
		return fmt.Errorf("invalid restore delay: %v", c.RestoreDelay)
	}
	return nil
}

// Error reports a failed injection. Text is the transcription that could
// not be delivered so the caller can surface it another way.
type Error struct {
	Text string
	Err  error
}

func (e *Error) Error() string { return "inject text: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

var ErrEmptyText = errors.New("cannot inject empty text")

// hostOS is the platform typing backends are chosen for.
var hostOS = runtime.GOOS

// Backend types text as simulated keystrokes.
type Backend interface {
	Name() string
	Available() error
	Inject(ctx context.Context, text string, timeout time.Duration) error
}

type injector struct {
	config    Config
	backends  []Backend
	clipboard Clipboard
	paster    Paster
	log       zerolog.Logger
}

func NewInjector(config Config) Injector {
	var clip Clipboard = NewSystemClipboard()
	if config.Clipboard == ClipboardWayland {
		clip = NewWaylandClipboard(config.ClipboardTimeout)
	}
	backends := make([]Backend, 0, len(config.Backends))
	for _, name := range config.Backends {
		if SupportsOS(name, hostOS) {
			backends = append(backends, typers[name].new())
		}
	}
	return newInjector(config, backends, clip, NewKeyboardPaster())
}

func newInjector(config Config, backends []Backend, clip Clipboard, paster Paster) *injector {
	return &injector{
		config:    config,
		backends:  backends,
		clipboard: clip,
		paster:    paster,
		log:       logging.For("injection"),
	}
}

// Inject delivers text at the cursor according to the configured mode.
// The text is passed through unmodified.
func (i *injector) Inject(ctx context.Context, text string) error {
	if text == "" {
		return &Error{Err: ErrEmptyText}
	}

	var err error
	switch i.config.Mode {
	case ModeType:
		err = i.typeText(ctx, text)
	case ModePaste:
		err = i.pasteText(ctx, text)
	case ModeClipboard:
		err = i.clipboard.Write(text)
	default:
		err = fmt.Errorf("unsupported injection mode: %s", i.config.Mode)
	}
	if err != nil {
		return &Error{Text: text, Err: err}
	}
	i.log.Debug().Str("mode", i.config.Mode).Int("chars", len(text)).Msg("text injected")
	return nil
}

func (i *injector) typeText(ctx context.Context, text string) error {
	var errs []error
	for _, b := range i.backends {
		if err := b.Available(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		if err := b.Inject(ctx, text, i.config.TypeTimeout); err != nil {
			i.log.Warn().Err(err).Str("backend", b.Name()).Msg("typing failed, trying next backend")
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("no typing backend configured")
	}
	return fmt.Errorf("all typing backends failed: %w", errors.Join(errs...))
}

func (i *injector) pasteText(ctx context.Context, text string) error {
	var original string
	var haveOriginal bool
	if i.config.RestoreClipboard {
		prev, err := i.clipboard.Read()
		if err == nil {
			original, haveOriginal = prev, true
		} else {
			i.log.Debug().Err(err).Msg("could not read clipboard, it will not be restored")
		}
	}

	if err := i.clipboard.Write(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	if err := i.paster.Paste(ctx); err != nil {
		return fmt.Errorf("send paste keystroke: %w", err)
	}

	if haveOriginal && original != text {
		select {
		case <-time.After(i.config.RestoreDelay):
		case <-ctx.Done():
		}
		if err := i.clipboard.Write(original); err != nil {
			i.log.Warn().Err(err).Msg("failed to restore clipboard")
		}
	}
	return nil
}
