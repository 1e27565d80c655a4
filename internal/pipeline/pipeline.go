// Package pipeline runs dictation sessions: capture, voice-activity gate,
// transcription and injection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/logging"
	"github.com/uttertype/uttertype/internal/notify"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/transcriber"
	"github.com/uttertype/uttertype/internal/vad"
)

var ErrClosed = errors.New("pipeline closed")

type Config struct {
	Format        audio.Format
	FrameDuration time.Duration
	// MaxDuration cancels recordings that run longer.
	MaxDuration   time.Duration
	Language      string
	InjectTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Format:        audio.DefaultFormat(),
		FrameDuration: 30 * time.Millisecond,
		MaxDuration:   5 * time.Minute,
		InjectTimeout: 10 * time.Second,
	}
}

// Deps are the collaborators of a pipeline. NewSource is called once per
// session so the audio device is only held while recording.
type Deps struct {
	NewSource func() recording.Source
	Gate      *vad.Gate
	Backend   transcriber.Backend
	Injector  injection.Injector
	Notifier  notify.Notifier
}

// Listener observes every session state change. It runs on the goroutine
// that made the transition and must not block.
type Listener func(s *Session, from, to State)

// Orchestrator owns the sessions. At most one session records at a time.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	recording  *Session
	processing *Session
	last       *Session
	listeners  []Listener
	onText     []func(Transcript)
	closed     bool

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.NewSource == nil {
		return nil, fmt.Errorf("audio source is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("voice activity gate is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("transcription backend is required")
	}
	if deps.Injector == nil {
		return nil, fmt.Errorf("injector is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultConfig().FrameDuration
	}
	if cfg.InjectTimeout <= 0 {
		cfg.InjectTimeout = DefaultConfig().InjectTimeout
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: logging.For("pipeline")}, nil
}

// OnStateChange registers l for all future transitions.
func (o *Orchestrator) OnStateChange(l Listener) {
	o.mu.Lock()
	o.listeners = append(o.listeners, l)
	o.mu.Unlock()
}

// Begin starts a recording and returns without waiting for the audio
// device; a device that fails to open ends the session as Failed. A press
// while a session is already recording is coalesced into it. A session
// still processing is superseded: its result will be discarded.
func (o *Orchestrator) Begin(ctx context.Context) (*Session, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if s := o.recording; s != nil {
		o.mu.Unlock()
		s.log.Debug().Msg("already recording")
		return s, nil
	}
	if p := o.processing; p != nil {
		p.markDiscard()
		p.log.Info().Msg("superseded by a new session, result will be discarded")
	}
	s := newSession(o.cfg.FrameDuration)
	o.recording = s
	o.last = s
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(ctx, s)
	return s, nil
}

// End stops the recording and hands the audio to the worker.
func (o *Orchestrator) End() {
	o.mu.Lock()
	s := o.recording
	o.mu.Unlock()
	if s == nil {
		o.log.Debug().Msg("end requested but not recording")
		return
	}
	s.request(actionStop)
}

// Cancel discards a recording in progress, or marks a session that is
// already processing so its result is not injected.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	rec, proc := o.recording, o.processing
	o.mu.Unlock()

	switch {
	case rec != nil:
		rec.request(actionCancel)
	case proc != nil:
		proc.markDiscard()
		proc.log.Info().Msg("result will be discarded")
	default:
		o.log.Debug().Msg("cancel requested but nothing in progress")
	}
}

// Status is the state of the most recent session that has not finished,
// or Idle.
func (o *Orchestrator) Status() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recording != nil {
		return Recording
	}
	if o.processing != nil {
		return Processing
	}
	return Idle
}

// Last returns the most recently started session, or nil.
func (o *Orchestrator) Last() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Close cancels the active recording and waits for in-flight sessions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	rec := o.recording
	o.mu.Unlock()
	if rec != nil {
		rec.request(actionCancel)
	}
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, s *Session) {
	defer o.wg.Done()
	defer s.finish()

	src := o.deps.NewSource()
	frameCh, errCh, err := src.Start(ctx)
	if err != nil {
		var ce *recording.CaptureError
		if !errors.As(err, &ce) {
			err = &recording.CaptureError{Op: "start capture", Err: err}
		}
		o.clearRecording(s, false)
		o.fail(s, err, "Could not start recording: "+err.Error())
		return
	}

	o.setState(s, Recording)
	o.deps.Notifier.RecordingStarted()
	s.log.Info().Msg("recording started")

	var timeout <-chan time.Time
	if o.cfg.MaxDuration > 0 {
		timer := time.NewTimer(o.cfg.MaxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	reason := actionStop
	var captureErr error
loop:
	for {
		select {
		case frame, ok := <-frameCh:
			if !ok {
				frameCh = nil
				captureErr = &recording.CaptureError{Op: "read audio", Err: recording.ErrStreamEnded}
				break loop
			}
			s.append(frame.Data)

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				captureErr = err
				break loop
			}

		case reason = <-s.control:
			break loop

		case <-timeout:
			s.log.Warn().Dur("max_duration", o.cfg.MaxDuration).Msg("recording too long, cancelling")
			reason = actionCancel
			break loop

		case <-ctx.Done():
			reason = actionCancel
			break loop
		}
	}

	if err := src.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("stop capture")
	}
	keep := captureErr == nil && reason == actionStop
	if frameCh != nil {
		for frame := range frameCh {
			if keep {
				s.append(frame.Data)
			}
		}
	}

	switch {
	case captureErr != nil:
		o.clearRecording(s, false)
		o.fail(s, captureErr, "Recording failed: "+captureErr.Error())
	case reason == actionCancel:
		o.clearRecording(s, false)
		s.takeFrames()
		o.setState(s, Cancelled)
		o.deps.Notifier.Cancelled()
		s.log.Info().Msg("recording cancelled")
	default:
		o.finishRecording(s)
	}
}

func (o *Orchestrator) clearRecording(s *Session, processing bool) {
	o.mu.Lock()
	if o.recording == s {
		o.recording = nil
	}
	if processing {
		o.processing = s
	}
	o.mu.Unlock()
}

// finishRecording gates the captured audio. Recordings without enough
// speech end as Cancelled without any notification.
func (o *Orchestrator) finishRecording(s *Session) {
	gated, err := o.deps.Gate.Apply(s.takeFrames())
	if errors.Is(err, vad.ErrTooShort) {
		o.clearRecording(s, false)
		s.log.Info().Dur("total", gated.Total).Dur("speech", gated.SpeechDuration).Msg("recording too short, discarding")
		o.setState(s, Cancelled)
		return
	}
	if err != nil {
		o.clearRecording(s, false)
		o.fail(s, err, "Could not process audio: "+err.Error())
		return
	}
	s.log.Debug().Dur("total", gated.Total).Dur("kept", gated.Duration()).Dur("speech", gated.SpeechDuration).Msg("audio gated")

	o.clearRecording(s, true)
	o.process(s, gated)
}

func (o *Orchestrator) process(s *Session, gated vad.Result) {
	defer func() {
		o.mu.Lock()
		if o.processing == s {
			o.processing = nil
		}
		o.mu.Unlock()
	}()

	o.setState(s, Processing)
	o.deps.Notifier.RecordingEnded()
	o.deps.Notifier.Transcribing()

	chunks := gated.Chunks(o.deps.Gate.Config().ChunkDuration)
	res, err := transcriber.TranscribeChunks(context.Background(), o.deps.Backend, chunks, o.cfg.Format, o.cfg.Language)

	if s.Discarded() {
		s.setResult(res.Text, err)
		s.log.Info().Msg("result discarded")
		o.setState(s, Cancelled)
		return
	}
	if err != nil {
		o.fail(s, err, "Transcription failed: "+err.Error())
		return
	}
	s.setResult(res.Text, nil)
	s.log.Info().
		Str("provider", res.Provider).
		Str("model", res.Model).
		Dur("latency", res.Latency).
		Int("attempts", res.Attempts).
		Int("chunks", len(chunks)).
		Int("chars", len(res.Text)).
		Msg("transcribed")

	text := strings.TrimSpace(res.Text)
	if text == "" {
		s.log.Info().Msg("no dictation detected")
		o.setState(s, Completed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.InjectTimeout)
	defer cancel()
	if err := o.deps.Injector.Inject(ctx, text); err != nil {
		msg := "Could not insert text"
		var ie *injection.Error
		if errors.As(err, &ie) && ie.Text != "" {
			msg = fmt.Sprintf("Could not insert text: %s", ie.Text)
		}
		o.fail(s, err, msg)
		return
	}
	o.setState(s, Completed)
	s.log.Info().Dur("elapsed", time.Since(s.StartedAt)).Msg("session completed")
	o.emitTranscript(s, text, gated.Total, res)
}

func (o *Orchestrator) fail(s *Session, err error, msg string) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.log.Error().Err(err).Msg("session failed")
	o.setState(s, Failed)
	o.deps.Notifier.Error(msg)
}

func (o *Orchestrator) setState(s *Session, to State) {
	from, err := s.transition(to)
	if err != nil {
		s.log.Error().Err(err).Msg("refused state change")
		return
	}
	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state changed")

	o.mu.Lock()
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()
	for _, l := range listeners {
		l(s, from, to)
	}
}
