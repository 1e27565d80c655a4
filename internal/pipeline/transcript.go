package pipeline

import (
	"math"
	"time"

	"github.com/uttertype/uttertype/internal/provider"
	"github.com/uttertype/uttertype/internal/transcriber"
)

// CostPerSecond is the estimated price in dollars of one second of audio
// sent to a hosted provider.
const CostPerSecond = 0.0001

// Transcript records one injected dictation.
type Transcript struct {
	SessionID string
	At        time.Time
	Text      string
	// Audio is the recorded duration before silence trimming.
	Audio    time.Duration
	Cost     float64
	Provider string
	Model    string
}

// EstimateCost prices audio for the named provider, rounded to six
// decimals. Local providers are free.
func EstimateCost(providerName string, audio time.Duration) float64 {
	if p := provider.GetProvider(providerName); p != nil && p.IsLocal() {
		return 0
	}
	return math.Round(CostPerSecond*audio.Seconds()*1e6) / 1e6
}

// OnTranscript registers fn for every completed session that injected
// text. fn runs on the session goroutine.
func (o *Orchestrator) OnTranscript(fn func(Transcript)) {
	o.mu.Lock()
	o.onText = append(o.onText, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) emitTranscript(s *Session, text string, audio time.Duration, res transcriber.Result) {
	t := Transcript{
		SessionID: s.ID,
		At:        time.Now(),
		Text:      text,
		Audio:     audio,
		Cost:      EstimateCost(res.Provider, audio),
		Provider:  res.Provider,
		Model:     res.Model,
	}
	s.log.Info().Dur("audio", t.Audio).Float64("cost", t.Cost).Str("text", t.Text).Msg("transcript")

	o.mu.Lock()
	fns := append(([]func(Transcript))(nil), o.onText...)
	o.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}
