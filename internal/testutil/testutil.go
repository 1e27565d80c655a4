package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/transcriber"
)

// ToneFrame returns one 30 ms frame of 16 kHz mono PCM whose samples
// alternate between +amplitude and -amplitude, so its RMS equals amplitude.
func ToneFrame(amplitude int16) []byte {
	f := audio.DefaultFormat()
	n := f.FrameBytes(30*time.Millisecond) / audio.BytesPerSample
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.PCM(samples)
}

// SilenceFrame returns one 30 ms frame of zeros.
func SilenceFrame() []byte { return ToneFrame(0) }

// Frames builds n copies of frame as audio frames.
func Frames(n int, frame []byte) []recording.AudioFrame {
	out := make([]recording.AudioFrame, n)
	now := time.Now()
	for i := range out {
		out[i] = recording.AudioFrame{Data: frame, Timestamp: now.Add(time.Duration(i) * 30 * time.Millisecond)}
	}
	return out
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// MockRecorder implements recording.Source. It delivers Frames, then keeps
// the stream open until stopped. A non-nil StreamError is sent after the
// frames instead of waiting.
type MockRecorder struct {
	Frames      []recording.AudioFrame
	StartError  error
	StreamError error
	// Opening, when non-nil, holds Start until it is closed, like a slow
	// audio device.
	Opening chan struct{}

	mu        sync.Mutex
	recording atomic.Bool
	stopCh    chan struct{}
	starts    int
	stops     int
}

func NewMockRecorder(frames []recording.AudioFrame) *MockRecorder {
	return &MockRecorder{Frames: frames}
}

func (m *MockRecorder) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
	if m.Opening != nil {
		select {
		case <-m.Opening:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if m.StartError != nil {
		return nil, nil, m.StartError
	}

	stopCh := make(chan struct{})
	m.mu.Lock()
	m.stopCh = stopCh
	m.mu.Unlock()

	m.recording.Store(true)

	frameCh := make(chan recording.AudioFrame)
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			m.recording.Store(false)
			close(errCh)
			close(frameCh)
		}()

		for _, frame := range m.Frames {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case frameCh <- frame:
			}
		}

		if m.StreamError != nil {
			errCh <- m.StreamError
			return
		}

		select {
		case <-ctx.Done():
		case <-stopCh:
		}
	}()

	return frameCh, errCh, nil
}

func (m *MockRecorder) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	return nil
}

func (m *MockRecorder) IsRecording() bool {
	return m.recording.Load()
}

// Starts reports how many times the source was opened.
func (m *MockRecorder) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// MockBackend implements transcriber.Backend. TranscribeFunc overrides
// the fixed Text when set.
type MockBackend struct {
	Text           string
	Err            error
	TranscribeFunc func(ctx context.Context, req transcriber.Request) (transcriber.Result, error)
	// Block, when non-nil, delays every call until it is closed.
	Block chan struct{}

	mu       sync.Mutex
	requests []transcriber.Request
}

func NewMockBackend(text string) *MockBackend {
	return &MockBackend{Text: text}
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Transcribe(ctx context.Context, req transcriber.Request) (transcriber.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return transcriber.Result{}, ctx.Err()
		}
	}
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
	}
	if m.Err != nil {
		return transcriber.Result{}, m.Err
	}
	return transcriber.Result{Text: m.Text, Provider: "mock", Model: "mock", Attempts: 1}, nil
}

func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockBackend) Requests() []transcriber.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcriber.Request(nil), m.requests...)
}

// MockInjector implements injection.Injector for testing
type MockInjector struct {
	InjectError error

	mu            sync.Mutex
	injectedTexts []string
	calls         int
}

func NewMockInjector() *MockInjector {
	return &MockInjector{}
}

func (m *MockInjector) Inject(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.InjectError != nil {
		return m.InjectError
	}
	m.injectedTexts = append(m.injectedTexts, text)
	return nil
}

func (m *MockInjector) GetInjectedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.injectedTexts))
	copy(result, m.injectedTexts)
	return result
}

func (m *MockInjector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockNotifier records every notification as "kind" or "kind: message".
type MockNotifier struct {
	mu     sync.Mutex
	events []string
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (m *MockNotifier) add(e string) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *MockNotifier) RecordingStarted() { m.add("started") }
func (m *MockNotifier) RecordingEnded()   { m.add("ended") }
func (m *MockNotifier) Transcribing()     { m.add("transcribing") }
func (m *MockNotifier) Cancelled()        { m.add("cancelled") }
func (m *MockNotifier) Error(msg string)  { m.add("error: " + msg) }

func (m *MockNotifier) Notify(title, message string) { m.add(title + ": " + message) }

func (m *MockNotifier) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Errors returns only the error notifications.
func (m *MockNotifier) Errors() []string {
	var out []string
	for _, e := range m.Events() {
		if len(e) > 7 && e[:7] == "error: " {
			out = append(out, e[7:])
		}
	}
	return out
}
