package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/logging"
)

type State string

const (
	Idle       State = "idle"
	Recording  State = "recording"
	Processing State = "processing"
	Completed  State = "completed"
	Cancelled  State = "cancelled"
	Failed     State = "failed"
)

var transitions = map[State][]State{
	Idle:       {Recording, Failed},
	Recording:  {Processing, Cancelled, Failed},
	Processing: {Completed, Cancelled, Failed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one recording-to-injection cycle.
type Session struct {
	ID        string
	StartedAt time.Time

	frameDuration time.Duration
	log           zerolog.Logger

	mu      sync.Mutex
	state   State
	frames  [][]byte
	discard bool
	text    string
	err     error
	stopped chan struct{}

	// control carries stop and cancel requests to the capture loop.
	control chan action
}

type action int

const (
	actionStop action = iota
	actionCancel
)

func newSession(frameDuration time.Duration) *Session {
	id := uuid.NewString()
	return &Session{
		ID:            id,
		StartedAt:     time.Now(),
		frameDuration: frameDuration,
		log:           logging.For("pipeline").With().Str(logging.FieldSession, id).Logger(),
		state:         Idle,
		stopped:       make(chan struct{}),
		control:       make(chan action, 1),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text is the transcription, set once the backend returned.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Err is the error that failed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Duration of the captured audio.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.FrameCount()) * s.frameDuration
}

// Discarded reports whether the result must not be injected.
func (s *Session) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discard
}

// Done is closed after the session reached a terminal state and its
// notifications were sent.
func (s *Session) Done() <-chan struct{} { return s.stopped }

func (s *Session) append(frame []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
}

func (s *Session) takeFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.frames
	s.frames = nil
	return frames
}

func (s *Session) markDiscard() {
	s.mu.Lock()
	s.discard = true
	s.mu.Unlock()
}

func (s *Session) setResult(text string, err error) {
	s.mu.Lock()
	s.text = text
	s.err = err
	s.mu.Unlock()
}

// request delivers a control action without blocking; a pending action
// wins over a later one.
func (s *Session) request(a action) {
	select {
	case s.control <- a:
	default:
	}
}

func (s *Session) transition(to State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.state
	if !canTransition(from, to) {
		return from, fmt.Errorf("invalid session transition %s -> %s", from, to)
	}
	s.state = to
	return from, nil
}

// finish releases Done waiters once every side effect of the session has
// happened.
func (s *Session) finish() { close(s.stopped) }
