// Package daemon runs uttertype in the background: it owns the session
// orchestrator, the hotkey controller and the control socket.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/bus"
	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/hotkey"
	"github.com/uttertype/uttertype/internal/logging"
	"github.com/uttertype/uttertype/internal/pipeline"
	"github.com/uttertype/uttertype/internal/transcriber"
)

// RegisterFunc grabs a global hotkey. system.Register in production.
type RegisterFunc func(spec hotkey.Spec) (hotkey.Binding, error)

// Options locate the daemon's files. Zero values use the defaults.
type Options struct {
	SockPath   string
	PidPath    string
	ConfigPath string // watched for changes when set
	Register   RegisterFunc
	// HandleSignals stops the daemon on SIGINT and SIGTERM.
	HandleSignals bool
}

type Daemon struct {
	cfg  *config.Config
	opts Options
	log  zerolog.Logger

	orch    *pipeline.Orchestrator
	backend transcriber.Backend
	ctrl    *hotkey.Controller
	server  *bus.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	bindings []hotkey.Binding
	wg       sync.WaitGroup
}

// New wires an orchestrator built from deps to a hotkey controller.
func New(cfg *config.Config, deps pipeline.Deps, opts Options) (*Daemon, error) {
	orch, err := pipeline.New(cfg.ToPipelineConfig(), deps)
	if err != nil {
		return nil, err
	}
	server, err := bus.NewServer(opts.SockPath, opts.PidPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:     cfg,
		opts:    opts,
		log:     logging.For("daemon"),
		orch:    orch,
		backend: deps.Backend,
		server:  server,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.ctrl = hotkey.NewController(cfg.TriggerMode(), cfg.Hotkey.Debounce, d)
	orch.OnStateChange(d.onStateChange)
	return d, nil
}

// Start, Stop and Cancel make the daemon the controller's handler.

func (d *Daemon) Start() {
	if _, err := d.orch.Begin(d.ctx); err != nil {
		d.log.Error().Err(err).Msg("could not begin session")
	}
}

func (d *Daemon) Stop()   { d.orch.End() }
func (d *Daemon) Cancel() { d.orch.Cancel() }

// Status is the state of the current session, or idle.
func (d *Daemon) Status() pipeline.State { return d.orch.Status() }

// Controller exposes the trigger state machine, mainly for tests.
func (d *Daemon) Controller() *hotkey.Controller { return d.ctrl }

// Orchestrator exposes the session owner, mainly for tests.
func (d *Daemon) Orchestrator() *pipeline.Orchestrator { return d.orch }

// onStateChange re-arms the trigger when a session ends on its own, so the
// next press starts a new recording.
func (d *Daemon) onStateChange(s *pipeline.Session, from, to pipeline.State) {
	d.log.Debug().Str("session", s.ID).Str("from", string(from)).Str("to", string(to)).Msg("state")
	if to.Terminal() && s == d.orch.Last() {
		d.ctrl.Reset()
	}
}

// Run serves the control socket until Shutdown, a quit command or a signal.
func (d *Daemon) Run() error {
	ln, err := d.server.Open()
	if err != nil {
		return err
	}
	defer d.close()

	if d.opts.HandleSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				d.log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
				d.cancel()
			case <-d.ctx.Done():
			}
		}()
	}

	if err := d.registerHotkeys(); err != nil {
		return err
	}

	if d.opts.ConfigPath != "" {
		w := config.NewWatcher(d.opts.ConfigPath, nil)
		if err := w.Start(d.ctx); err != nil {
			d.log.Warn().Err(err).Msg("could not watch config file")
		} else {
			defer w.Stop()
		}
	}

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	d.log.Info().
		Str("mode", string(d.ctrl.Mode())).
		Str("provider", d.cfg.Transcription.Provider).
		Msg("daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				d.log.Info().Msg("shutdown requested")
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(c)
		}()
	}
}

// Shutdown makes Run return.
func (d *Daemon) Shutdown() { d.cancel() }

func (d *Daemon) registerHotkeys() error {
	if d.opts.Register == nil || !d.cfg.UseGlobalHotkeys() {
		d.log.Info().Msg("global hotkeys disabled, use the control socket")
		return nil
	}

	record, err := d.bind(d.cfg.Hotkey.Record)
	if err != nil {
		return &config.Error{Field: "hotkey.record", Err: err}
	}
	var cancel hotkey.Binding
	if d.cfg.Hotkey.Cancel != "" {
		if cancel, err = d.bind(d.cfg.Hotkey.Cancel); err != nil {
			return &config.Error{Field: "hotkey.cancel", Err: err}
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		hotkey.Route(d.ctx, d.ctrl, record, cancel)
	}()
	return nil
}

func (d *Daemon) bind(s string) (hotkey.Binding, error) {
	spec, err := hotkey.Parse(s)
	if err != nil {
		return nil, err
	}
	b, err := d.opts.Register(spec)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", spec, err)
	}
	d.mu.Lock()
	d.bindings = append(d.bindings, b)
	d.mu.Unlock()
	d.log.Info().Str("hotkey", spec.String()).Msg("hotkey registered")
	return b, nil
}

func (d *Daemon) close() {
	d.cancel()

	d.mu.Lock()
	bindings := d.bindings
	d.bindings = nil
	d.mu.Unlock()
	for _, b := range bindings {
		if err := b.Close(); err != nil {
			d.log.Warn().Err(err).Msg("unregister hotkey")
		}
	}

	d.orch.Close()
	// stops model downloads and inference workers
	if c, ok := d.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.log.Warn().Err(err).Msg("close transcriber")
		}
	}
	d.wg.Wait()
	if err := d.server.Close(); err != nil {
		d.log.Warn().Err(err).Msg("cleanup")
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && line == "" {
		d.log.Warn().Err(err).Msg("client read error")
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	cmd := line[0]

	switch cmd {
	case bus.CmdToggle:
		d.ctrl.Toggle()
		fmt.Fprint(c, "OK toggled\n")
	case bus.CmdPress:
		d.ctrl.Press()
		fmt.Fprint(c, "OK pressed\n")
	case bus.CmdRelease:
		d.ctrl.Release()
		fmt.Fprint(c, "OK released\n")
	case bus.CmdCancel:
		d.ctrl.Cancel()
		fmt.Fprint(c, "OK cancelled\n")
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS status=%s\n", d.Status())
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		d.log.Warn().Str("cmd", string(cmd)).Msg("unknown command")
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}
