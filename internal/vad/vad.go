// Package vad decides which parts of a recording contain speech. It trims
// silence from the edges, rejects recordings too short to be intentional
// dictation and splits long dictations at pauses.
package vad

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/uttertype/uttertype/internal/audio"
)

// ErrTooShort means the session should end silently without transcription.
var ErrTooShort = errors.New("recording too short")

type Config struct {
	Enabled bool
	// Threshold is the RMS amplitude (int16 scale) above which a frame counts as speech.
	Threshold     float64
	FrameDuration time.Duration
	Padding       time.Duration
	MinDuration   time.Duration
	// ChunkDuration enables splitting at the first pause after a chunk
	// grows this long. Zero disables splitting.
	ChunkDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Threshold:     300,
		FrameDuration: 30 * time.Millisecond,
		Padding:       150 * time.Millisecond,
		MinDuration:   300 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > math.MaxInt16 {
		return fmt.Errorf("invalid threshold: %v", c.Threshold)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("invalid frame duration: %v", c.FrameDuration)
	}
	if c.Padding < 0 {
		return fmt.Errorf("invalid padding: %v", c.Padding)
	}
	if c.MinDuration < 0 {
		return fmt.Errorf("invalid minimum duration: %v", c.MinDuration)
	}
	if c.ChunkDuration < 0 {
		return fmt.Errorf("invalid chunk duration: %v", c.ChunkDuration)
	}
	return nil
}

type Gate struct {
	cfg Config
}

func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

func (g *Gate) Config() Config { return g.cfg }

// IsSpeech classifies a single PCM frame.
func (g *Gate) IsSpeech(frame []byte) bool {
	return RMS(frame) >= g.cfg.Threshold
}

// RMS of the int16 samples in pcm.
func RMS(pcm []byte) float64 {
	samples := audio.Samples(pcm)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Result is the gated recording.
type Result struct {
	Frames [][]byte
	Speech []bool
	// Total is the duration of the whole recording before trimming.
	Total time.Duration
	// SpeechDuration counts only frames classified as speech.
	SpeechDuration time.Duration

	frameDuration time.Duration
}

// Duration of the frames kept after trimming.
func (r Result) Duration() time.Duration {
	return time.Duration(len(r.Frames)) * r.frameDuration
}

// PCM concatenates the kept frames.
func (r Result) PCM() []byte {
	n := 0
	for _, f := range r.Frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range r.Frames {
		out = append(out, f...)
	}
	return out
}

// Chunks splits the kept audio at the first silent frame after each chunk
// reaches min. The final chunk holds whatever remains. A zero min returns
// a single chunk.
func (r Result) Chunks(min time.Duration) [][]byte {
	if min <= 0 || r.frameDuration <= 0 {
		return [][]byte{r.PCM()}
	}

	var chunks [][]byte
	var cur []byte
	var curFrames int
	for i, f := range r.Frames {
		long := time.Duration(curFrames)*r.frameDuration >= min
		if long && !r.Speech[i] {
			chunks = append(chunks, cur)
			cur = nil
			curFrames = 0
		}
		cur = append(cur, f...)
		curFrames++
	}
	if len(cur) > 0 || len(chunks) == 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// Apply gates a finalized recording. It returns ErrTooShort when the
// recording or the speech inside it is shorter than the configured minimum.
func (g *Gate) Apply(frames [][]byte) (Result, error) {
	res := Result{
		Total:         time.Duration(len(frames)) * g.cfg.FrameDuration,
		frameDuration: g.cfg.FrameDuration,
	}
	if res.Total < g.cfg.MinDuration || len(frames) == 0 {
		return res, ErrTooShort
	}

	speech := make([]bool, len(frames))
	first, last := -1, -1
	for i, f := range frames {
		speech[i] = !g.cfg.Enabled || g.IsSpeech(f)
		if speech[i] {
			if first < 0 {
				first = i
			}
			last = i
			res.SpeechDuration += g.cfg.FrameDuration
		}
	}

	if first < 0 || res.SpeechDuration < g.cfg.MinDuration {
		return res, ErrTooShort
	}

	pad := int(g.cfg.Padding / g.cfg.FrameDuration)
	start := max(first-pad, 0)
	end := min(last+pad+1, len(frames))

	res.Frames = frames[start:end]
	res.Speech = speech[start:end]
	return res, nil
}
