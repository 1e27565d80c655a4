package pipeline

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/testutil"
	"github.com/uttertype/uttertype/internal/transcriber"
	"github.com/uttertype/uttertype/internal/vad"
)

type harness struct {
	o        *Orchestrator
	src      *testutil.MockRecorder
	backend  *testutil.MockBackend
	injector *testutil.MockInjector
	notifier *testutil.MockNotifier
}

func newHarness(t *testing.T, frames []recording.AudioFrame, backend transcriber.Backend, cfg Config) *harness {
	t.Helper()
	return newGatedHarness(t, frames, backend, cfg, vad.DefaultConfig())
}

func newGatedHarness(t *testing.T, frames []recording.AudioFrame, backend transcriber.Backend, cfg Config, gate vad.Config) *harness {
	t.Helper()
	h := &harness{
		src:      testutil.NewMockRecorder(frames),
		injector: testutil.NewMockInjector(),
		notifier: testutil.NewMockNotifier(),
	}
	if mb, ok := backend.(*testutil.MockBackend); ok {
		h.backend = mb
	}
	o, err := New(cfg, Deps{
		NewSource: func() recording.Source { return h.src },
		Gate:      vad.New(gate),
		Backend:   backend,
		Injector:  h.injector,
		Notifier:  h.notifier,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h.o = o
	t.Cleanup(o.Close)
	return h
}

func speech(n int) []recording.AudioFrame {
	return testutil.Frames(n, testutil.ToneFrame(3000))
}

// record runs one hold-to-talk cycle and waits for the session to finish.
func (h *harness) record(t *testing.T) *Session {
	t.Helper()
	s, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	want := len(h.src.Frames)
	testutil.WaitForCondition(t, func() bool { return s.FrameCount() == want }, 2*time.Second)
	h.o.End()
	waitDone(t, s)
	return s
}

// transitionLog collects every state change as "from>to".
type transitionLog struct {
	mu   sync.Mutex
	seen []string
}

func (h *harness) logTransitions() *transitionLog {
	l := &transitionLog{}
	h.o.OnStateChange(func(s *Session, from, to State) {
		l.mu.Lock()
		l.seen = append(l.seen, string(from)+">"+string(to))
		l.mu.Unlock()
	})
	return l
}

func (l *transitionLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seen...)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session stuck in state %s", s.State())
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	if err == nil {
		t.Fatal("New() with no deps should fail")
	}
}

func TestHelloWorld(t *testing.T) {
	// 1.5 s of speech
	h := newHarness(t, speech(50), testutil.NewMockBackend("hello world"), DefaultConfig())

	s := h.record(t)

	if s.State() != Completed {
		t.Fatalf("state = %s, want completed (err: %v)", s.State(), s.Err())
	}
	if got := h.injector.GetInjectedTexts(); !reflect.DeepEqual(got, []string{"hello world"}) {
		t.Errorf("injected = %q", got)
	}
	if h.backend.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1", h.backend.Calls())
	}
	want := []string{"started", "ended", "transcribing"}
	if got := h.notifier.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("notifications = %v, want %v", got, want)
	}
	testutil.WaitForCondition(t, func() bool { return h.o.Status() == Idle }, time.Second)
}

func TestShortPressIsCancelledSilently(t *testing.T) {
	tests := []struct {
		name   string
		frames []recording.AudioFrame
	}{
		{"100ms press", speech(3)},
		{"only silence", testutil.Frames(50, testutil.SilenceFrame())},
		{"speech too short", append(testutil.Frames(40, testutil.SilenceFrame()), speech(5)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.frames, testutil.NewMockBackend("should not appear"), DefaultConfig())
			log := h.logTransitions()

			s := h.record(t)

			if s.State() != Cancelled {
				t.Errorf("state = %s, want cancelled", s.State())
			}
			if h.backend.Calls() != 0 {
				t.Errorf("backend calls = %d, want 0", h.backend.Calls())
			}
			if h.injector.Calls() != 0 {
				t.Errorf("injector calls = %d, want 0", h.injector.Calls())
			}
			if want := []string{"idle>recording", "recording>cancelled"}; !reflect.DeepEqual(log.get(), want) {
				t.Errorf("transitions = %v, want %v", log.get(), want)
			}
			if want := []string{"started"}; !reflect.DeepEqual(h.notifier.Events(), want) {
				t.Errorf("notifications = %v, want %v", h.notifier.Events(), want)
			}
		})
	}
}

func TestPermanentBackendError(t *testing.T) {
	mb := testutil.NewMockBackend("")
	mb.Err = transcriber.NewPermanentError("mock", errors.New("401 unauthorized"))
	backend := transcriber.Resilient(mb, transcriber.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond})
	h := newHarness(t, speech(50), backend, DefaultConfig())

	s := h.record(t)

	if s.State() != Failed {
		t.Fatalf("state = %s, want failed", s.State())
	}
	if !transcriber.IsPermanent(s.Err()) {
		t.Errorf("err = %v, want permanent backend error", s.Err())
	}
	if mb.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry)", mb.Calls())
	}
	if h.injector.Calls() != 0 {
		t.Error("nothing should be injected")
	}
	if errs := h.notifier.Errors(); len(errs) != 1 {
		t.Errorf("error notifications = %v, want exactly one", errs)
	}
}

func TestTransientBackendErrorRecovers(t *testing.T) {
	mb := testutil.NewMockBackend("")
	var mu sync.Mutex
	calls := 0
	mb.TranscribeFunc = func(ctx context.Context, req transcriber.Request) (transcriber.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return transcriber.Result{}, transcriber.NewTransientError("mock", errors.New("503"))
		}
		return transcriber.Result{Text: "second try"}, nil
	}
	backend := transcriber.Resilient(mb, transcriber.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond})
	h := newHarness(t, speech(50), backend, DefaultConfig())

	s := h.record(t)

	if s.State() != Completed {
		t.Fatalf("state = %s, want completed (err: %v)", s.State(), s.Err())
	}
	if got := h.injector.GetInjectedTexts(); !reflect.DeepEqual(got, []string{"second try"}) {
		t.Errorf("injected = %q", got)
	}
}

func TestBackendTimeout(t *testing.T) {
	mb := testutil.NewMockBackend("late")
	mb.Block = make(chan struct{})
	defer close(mb.Block)
	backend := transcriber.Resilient(mb, transcriber.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, Timeout: 50 * time.Millisecond})
	h := newHarness(t, speech(50), backend, DefaultConfig())

	s := h.record(t)

	if s.State() != Failed {
		t.Fatalf("state = %s, want failed", s.State())
	}
	if !errors.Is(s.Err(), transcriber.ErrTimeout) {
		t.Errorf("err = %v, want timeout", s.Err())
	}
	if mb.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1", mb.Calls())
	}
}

func TestInjectionFailureReportsText(t *testing.T) {
	h := newHarness(t, speech(50), testutil.NewMockBackend("hello world"), DefaultConfig())
	h.injector.InjectError = &injection.Error{Text: "hello world", Err: errors.New("no focused window")}

	s := h.record(t)

	if s.State() != Failed {
		t.Fatalf("state = %s, want failed", s.State())
	}
	errs := h.notifier.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0], "hello world") {
		t.Errorf("error notifications = %v, want one carrying the text", errs)
	}
}

func TestCancelDuringRecording(t *testing.T) {
	h := newHarness(t, speech(50), testutil.NewMockBackend("x"), DefaultConfig())

	s, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	testutil.WaitForCondition(t, func() bool { return s.FrameCount() > 10 }, 2*time.Second)
	h.o.Cancel()
	waitDone(t, s)

	if s.State() != Cancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	if h.backend.Calls() != 0 || h.injector.Calls() != 0 {
		t.Error("cancelled recording must not reach backend or injector")
	}
	if h.src.IsRecording() {
		t.Error("source should be stopped")
	}
	events := h.notifier.Events()
	if events[len(events)-1] != "cancelled" {
		t.Errorf("notifications = %v, want cancelled last", events)
	}
}

func TestCancelDuringProcessingDiscardsResult(t *testing.T) {
	mb := testutil.NewMockBackend("too late")
	mb.Block = make(chan struct{})
	h := newHarness(t, speech(50), mb, DefaultConfig())

	s, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	testutil.WaitForCondition(t, func() bool { return s.FrameCount() == 50 }, 2*time.Second)
	h.o.End()
	testutil.WaitForCondition(t, func() bool { return mb.Calls() == 1 }, 2*time.Second)

	if h.o.Status() != Processing {
		t.Errorf("status = %s, want processing", h.o.Status())
	}
	h.o.Cancel()
	close(mb.Block)
	waitDone(t, s)

	if s.State() != Cancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	if !s.Discarded() {
		t.Error("session should be marked discarded")
	}
	if h.injector.Calls() != 0 {
		t.Error("discarded result must not be injected")
	}
}

func TestNewSessionSupersedesProcessing(t *testing.T) {
	mb := testutil.NewMockBackend("text")
	mb.Block = make(chan struct{})
	h := newHarness(t, speech(50), mb, DefaultConfig())

	first, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	testutil.WaitForCondition(t, func() bool { return first.FrameCount() == 50 }, 2*time.Second)
	h.o.End()
	testutil.WaitForCondition(t, func() bool { return mb.Calls() == 1 }, 2*time.Second)

	second, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("expected a new session")
	}
	if !first.Discarded() {
		t.Error("processing session should be superseded")
	}
	testutil.WaitForCondition(t, func() bool { return second.FrameCount() == 50 }, 2*time.Second)
	h.o.End()
	close(mb.Block)
	waitDone(t, first)
	waitDone(t, second)

	if first.State() != Cancelled {
		t.Errorf("first state = %s, want cancelled", first.State())
	}
	if second.State() != Completed {
		t.Errorf("second state = %s, want completed", second.State())
	}
	if got := h.injector.GetInjectedTexts(); len(got) != 1 {
		t.Errorf("injected = %q, want exactly one", got)
	}
}

func TestConcurrentPressesCoalesce(t *testing.T) {
	h := newHarness(t, speech(50), testutil.NewMockBackend("once"), DefaultConfig())

	var wg sync.WaitGroup
	sessions := make([]*Session, 5)
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := h.o.Begin(context.Background())
			if err != nil {
				t.Error(err)
			}
			sessions[i] = s
		}()
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		if s != sessions[0] {
			t.Fatal("concurrent Begin calls should return the same session")
		}
	}
	if h.src.Starts() != 1 {
		t.Errorf("source opened %d times, want 1", h.src.Starts())
	}
	s := sessions[0]
	testutil.WaitForCondition(t, func() bool { return s.FrameCount() == 50 }, 2*time.Second)
	h.o.End()
	waitDone(t, s)
	if h.backend.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1", h.backend.Calls())
	}
}

func TestCaptureErrors(t *testing.T) {
	t.Run("device unavailable", func(t *testing.T) {
		h := newHarness(t, nil, testutil.NewMockBackend("x"), DefaultConfig())
		h.src.StartError = errors.New("no such device")

		s, err := h.o.Begin(context.Background())
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		waitDone(t, s)
		var ce *recording.CaptureError
		if !errors.As(s.Err(), &ce) {
			t.Fatalf("session error = %v, want CaptureError", s.Err())
		}
		if s.State() != Failed {
			t.Errorf("state = %s, want failed", s.State())
		}
		if len(h.notifier.Errors()) != 1 {
			t.Errorf("error notifications = %v", h.notifier.Errors())
		}
		if h.o.Status() != Idle {
			t.Errorf("status = %s, want idle", h.o.Status())
		}
	})

	t.Run("slow device does not block Begin", func(t *testing.T) {
		h := newHarness(t, speech(50), testutil.NewMockBackend("late"), DefaultConfig())
		h.src.Opening = make(chan struct{})

		begun := make(chan *Session, 1)
		go func() {
			s, _ := h.o.Begin(context.Background())
			begun <- s
		}()
		var s *Session
		select {
		case s = <-begun:
		case <-time.After(time.Second):
			t.Fatal("Begin waited for the audio device")
		}
		if s.State() != Idle || h.o.Status() != Recording {
			t.Errorf("state = %s, status = %s while the device opens", s.State(), h.o.Status())
		}
		if again, _ := h.o.Begin(context.Background()); again != s {
			t.Error("a second press while opening should join the session")
		}

		close(h.src.Opening)
		testutil.WaitForCondition(t, func() bool { return s.FrameCount() == 50 }, 2*time.Second)
		h.o.End()
		waitDone(t, s)
		if s.State() != Completed || h.src.Starts() != 1 {
			t.Errorf("state = %s after %d device opens", s.State(), h.src.Starts())
		}
	})

	t.Run("stream dies", func(t *testing.T) {
		h := newHarness(t, speech(5), testutil.NewMockBackend("x"), DefaultConfig())
		h.src.StreamError = &recording.CaptureError{Op: "read audio", Err: recording.ErrStreamEnded}

		s, err := h.o.Begin(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		waitDone(t, s)

		if s.State() != Failed {
			t.Errorf("state = %s, want failed", s.State())
		}
		var ce *recording.CaptureError
		if !errors.As(s.Err(), &ce) {
			t.Errorf("err = %v, want CaptureError", s.Err())
		}
		if h.backend.Calls() != 0 {
			t.Error("failed capture must not reach backend")
		}
	})
}

func TestMaxDurationCancels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDuration = 50 * time.Millisecond
	h := newHarness(t, speech(5), testutil.NewMockBackend("x"), cfg)

	s, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	if s.State() != Cancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	if h.backend.Calls() != 0 {
		t.Error("timed out recording must not reach backend")
	}
}

func TestChunkedTranscription(t *testing.T) {
	gate := vad.DefaultConfig()
	gate.ChunkDuration = 300 * time.Millisecond
	frames := append(speech(20), testutil.Frames(5, testutil.SilenceFrame())...)
	frames = append(frames, speech(20)...)
	h := newGatedHarness(t, frames, testutil.NewMockBackend("hello"), DefaultConfig(), gate)

	s := h.record(t)

	if s.State() != Completed {
		t.Fatalf("state = %s (err: %v)", s.State(), s.Err())
	}
	if h.backend.Calls() != 2 {
		t.Errorf("backend calls = %d, want 2", h.backend.Calls())
	}
	if got := h.injector.GetInjectedTexts(); !reflect.DeepEqual(got, []string{"hello hello"}) {
		t.Errorf("injected = %q", got)
	}
}

func TestSameAudioSameRequest(t *testing.T) {
	h := newHarness(t, speech(50), testutil.NewMockBackend("same"), DefaultConfig())

	h.record(t)
	h.record(t)

	reqs := h.backend.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if !bytes.Equal(reqs[0].PCM, reqs[1].PCM) || reqs[0].Format != reqs[1].Format {
		t.Error("identical recordings should produce identical requests")
	}
	if got := h.injector.GetInjectedTexts(); !reflect.DeepEqual(got, []string{"same", "same"}) {
		t.Errorf("injected = %q", got)
	}
}

func TestStateListener(t *testing.T) {
	h := newHarness(t, speech(50), testutil.NewMockBackend("hi"), DefaultConfig())

	log := h.logTransitions()

	h.record(t)

	want := []string{"idle>recording", "recording>processing", "processing>completed"}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Idle, Recording, true},
		{Idle, Failed, true},
		{Idle, Processing, false},
		{Recording, Processing, true},
		{Recording, Cancelled, true},
		{Recording, Completed, false},
		{Processing, Completed, true},
		{Processing, Recording, false},
		{Completed, Idle, false},
		{Failed, Recording, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.to), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.ok {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}

	s := newSession(30 * time.Millisecond)
	if _, err := s.transition(Completed); err == nil {
		t.Error("idle -> completed should be refused")
	}
	if s.State() != Idle {
		t.Errorf("refused transition changed state to %s", s.State())
	}
}

func TestCloseCancelsRecording(t *testing.T) {
	h := newHarness(t, speech(50), testutil.NewMockBackend("x"), DefaultConfig())

	s, err := h.o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	h.o.Close()

	if s.State() != Cancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	if _, err := h.o.Begin(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Begin after Close error = %v, want ErrClosed", err)
	}
}

func TestTranscriptRecordsCost(t *testing.T) {
	mb := testutil.NewMockBackend("")
	mb.TranscribeFunc = func(ctx context.Context, req transcriber.Request) (transcriber.Result, error) {
		return transcriber.Result{Text: "hello world", Provider: transcriber.ProviderOpenAI, Model: "whisper-1"}, nil
	}
	h := newHarness(t, speech(50), mb, DefaultConfig())

	var mu sync.Mutex
	var got []Transcript
	h.o.OnTranscript(func(tr Transcript) {
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	})

	s := h.record(t)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("transcripts = %d, want 1", len(got))
	}
	tr := got[0]
	if tr.SessionID != s.ID || tr.Text != "hello world" || tr.Provider != transcriber.ProviderOpenAI {
		t.Errorf("unexpected transcript %+v", tr)
	}
	if tr.Audio != 1500*time.Millisecond {
		t.Errorf("audio = %v, want 1.5s", tr.Audio)
	}
	if tr.Cost != 0.00015 {
		t.Errorf("cost = %v, want 0.00015", tr.Cost)
	}
}

func TestNoTranscriptWithoutInjection(t *testing.T) {
	tests := []struct {
		name    string
		frames  []recording.AudioFrame
		text    string
		injectE error
	}{
		{"too short", speech(3), "x", nil},
		{"empty result", speech(50), "", nil},
		{"injection fails", speech(50), "x", errors.New("no typer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.frames, testutil.NewMockBackend(tt.text), DefaultConfig())
			h.injector.InjectError = tt.injectE
			var n int
			var mu sync.Mutex
			h.o.OnTranscript(func(Transcript) {
				mu.Lock()
				n++
				mu.Unlock()
			})

			h.record(t)

			mu.Lock()
			defer mu.Unlock()
			if n != 0 {
				t.Errorf("transcripts = %d, want 0", n)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		provider string
		audio    time.Duration
		want     float64
	}{
		{transcriber.ProviderOpenAI, 1500 * time.Millisecond, 0.00015},
		{transcriber.ProviderGoogle, 12346 * time.Millisecond, 0.001235},
		{transcriber.ProviderOpenAI, 0, 0},
		{transcriber.ProviderMLX, time.Minute, 0},
		{"mock", 10 * time.Second, 0.001},
	}
	for _, tt := range tests {
		if got := EstimateCost(tt.provider, tt.audio); got != tt.want {
			t.Errorf("EstimateCost(%s, %v) = %v, want %v", tt.provider, tt.audio, got, tt.want)
		}
	}
}
