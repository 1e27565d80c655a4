package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/logging"
)

type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Source is an open-per-session microphone stream. The frame channel is
// closed when capture ends; at most one error is delivered before that.
type Source interface {
	Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error)
	Stop() error
	IsRecording() bool
}

const (
	BackendPipeWire  = "pipewire"
	BackendPortAudio = "portaudio"
)

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	FrameDuration     time.Duration
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		FrameDuration:     30 * time.Millisecond,
		Device:            "",
		ChannelBufferSize: 64,
	}
}

func (c Config) AudioFormat() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// FrameBytes is the fixed size of every frame a source emits.
func (c Config) FrameBytes() int {
	return c.AudioFormat().FrameBytes(c.FrameDuration)
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.Format != "s16" {
		return fmt.Errorf("invalid Format: %q (only s16 is supported)", c.Format)
	}
	if c.FrameDuration < 10*time.Millisecond || c.FrameDuration > 100*time.Millisecond {
		return fmt.Errorf("invalid FrameDuration: %v (must be between 10ms and 100ms)", c.FrameDuration)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	return nil
}

// CaptureError reports a microphone failure: device missing, permission
// denied or the stream ending while the session still wanted audio.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return "capture: " + e.Op
	}
	return fmt.Sprintf("capture: %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

var ErrStreamEnded = errors.New("audio stream ended unexpectedly")

// Recorder captures audio through a pw-record subprocess.
type Recorder struct {
	config    Config
	recording atomic.Bool
	log       zerolog.Logger

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config, log: logging.For("recording")}
}

func NewDefaultRecorder() *Recorder { return NewRecorder(DefaultConfig()) }

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

func (r *Recorder) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if r.recording.Load() {
		return nil, nil, fmt.Errorf("already recording")
	}

	if err := r.config.Validate(); err != nil {
		return nil, nil, err
	}

	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, nil, &CaptureError{Op: "open device", Err: err}
	}

	recordingCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan AudioFrame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(recordingCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}
	r.requestCancel()
	return nil
}

func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, frameCh chan<- AudioFrame, errCh chan<- error) {
	defer func() {
		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		r.cancel = nil
		r.mu.Unlock()

		r.recording.Store(false)
		close(errCh)
		close(frameCh)
		r.wg.Done()
	}()

	cmd := exec.CommandContext(ctx, "pw-record", r.buildPwRecordArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, &CaptureError{Op: "create stdout pipe", Err: err})
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, &CaptureError{Op: "create stderr pipe", Err: err})
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		r.emitErr(errCh, &CaptureError{Op: "start pw-record", Err: err})
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.log.Debug().Str("stderr", scanner.Text()).Msg("pw-record")
		}
	}()

	var sent int
	err = ReadFrames(ctx, stdout, r.config.FrameBytes(), func(frame AudioFrame) bool {
		select {
		case frameCh <- frame:
			sent++
			return true
		case <-ctx.Done():
			return false
		}
	})
	if err != nil && ctx.Err() == nil {
		r.emitErr(errCh, &CaptureError{Op: "read audio", Err: err})
	}
	r.log.Debug().Int("frames", sent).Msg("capture loop finished")
}

// ReadFrames reads fixed-size frames from rd until EOF, an error, or emit
// returning false. A trailing partial frame is discarded. Reaching EOF is
// reported as ErrStreamEnded: a live microphone stream never ends on its own.
func ReadFrames(ctx context.Context, rd io.Reader, frameBytes int, emit func(AudioFrame) bool) error {
	if frameBytes <= 0 {
		return fmt.Errorf("invalid frame size: %d", frameBytes)
	}
	br := bufio.NewReaderSize(rd, frameBytes*4)
	for {
		buf := make([]byte, frameBytes)
		_, err := io.ReadFull(br, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrStreamEnded
			}
			return err
		}
		if !emit(AudioFrame{Data: buf, Timestamp: time.Now()}) {
			return nil
		}
	}
}

func (r *Recorder) requestCancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	r.log.Error().Err(err).Msg("recording error")
	r.requestCancel()
}

func (r *Recorder) buildPwRecordArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.SampleRate),
		"--channels", strconv.Itoa(r.config.Channels),
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return append(args, "-")
}

func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}
