// Package portaudio captures microphone audio through the PortAudio C
// library. It lives apart from package recording so the cgo dependency is
// only linked into binaries that select it.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/logging"
	"github.com/uttertype/uttertype/internal/recording"
)

// Recorder opens the input device at Start and releases it when the
// session's capture ends.
type Recorder struct {
	config    recording.Config
	recording atomic.Bool
	log       zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ recording.Source = (*Recorder)(nil)

func NewRecorder(config recording.Config) *Recorder {
	return &Recorder{config: config, log: logging.For("portaudio")}
}

func (r *Recorder) IsRecording() bool { return r.recording.Load() }

func (r *Recorder) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	if r.recording.Load() {
		return nil, nil, fmt.Errorf("already recording")
	}
	if err := r.config.Validate(); err != nil {
		return nil, nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, nil, &recording.CaptureError{Op: "portaudio init", Err: err}
	}

	samplesPerFrame := r.config.FrameBytes() / audio.BytesPerSample
	in := make([]int16, samplesPerFrame)
	stream, err := r.openStream(in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, nil, &recording.CaptureError{Op: "open device", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, nil, &recording.CaptureError{Op: "start stream", Err: err}
	}

	recordingCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	frameCh := make(chan recording.AudioFrame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(recordingCtx, stream, in, frameCh, errCh)

	return frameCh, errCh, nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (r *Recorder) Wait() { r.wg.Wait() }

func (r *Recorder) openStream(in []int16) (*portaudio.Stream, error) {
	if r.config.Device == "" {
		return portaudio.OpenDefaultStream(r.config.Channels, 0, float64(r.config.SampleRate), len(in)/r.config.Channels, in)
	}

	dev, err := findInputDevice(r.config.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = r.config.Channels
	params.SampleRate = float64(r.config.SampleRate)
	params.FramesPerBuffer = len(in) / r.config.Channels
	return portaudio.OpenStream(params, in)
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

func (r *Recorder) captureLoop(ctx context.Context, stream *portaudio.Stream, in []int16, frameCh chan<- recording.AudioFrame, errCh chan<- error) {
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
		_ = portaudio.Terminate()

		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()

		r.recording.Store(false)
		close(errCh)
		close(frameCh)
		r.wg.Done()
	}()

	overflows := 0
	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				overflows++
				continue
			}
			if ctx.Err() != nil {
				return
			}
			errCh <- &recording.CaptureError{Op: "read audio", Err: err}
			r.log.Error().Err(err).Msg("stream read failed")
			return
		}

		frame := recording.AudioFrame{Data: audio.PCM(in), Timestamp: time.Now()}
		select {
		case frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
	if overflows > 0 {
		r.log.Warn().Int("overflows", overflows).Msg("input overflowed during capture")
	}
}
