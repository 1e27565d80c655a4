package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/logging"
)

const (
	TypeDesktop = "desktop"
	TypeLog     = "log"
	TypeNone    = "none"
)

const appName = "uttertype"

// Notifier gives the user feedback about session progress. Implementations
// must not block the caller for long.
type Notifier interface {
	RecordingStarted()
	RecordingEnded()
	Transcribing()
	Cancelled()
	Error(msg string)
	Notify(title, message string)
}

// New returns the notifier for a notifications.type value.
func New(kind string, enabled bool) (Notifier, error) {
	if !enabled {
		return Nop{}, nil
	}
	switch kind {
	case TypeDesktop:
		return NewDesktop(), nil
	case TypeLog, "":
		return NewLog(), nil
	case TypeNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown notification type: %s", kind)
	}
}

type sendFunc func(title, message string) error

// Desktop shows native notifications via beeep.
type Desktop struct {
	notify sendFunc
	alert  sendFunc
	log    zerolog.Logger
}

func NewDesktop() *Desktop {
	return &Desktop{
		notify: func(title, message string) error { return beeep.Notify(title, message, "") },
		alert:  func(title, message string) error { return beeep.Alert(title, message, "") },
		log:    logging.For("notify"),
	}
}

func (d *Desktop) send(fn sendFunc, title, message string) {
	if err := fn(title, message); err != nil {
		d.log.Warn().Err(err).Msg("failed to send notification")
	}
}

func (d *Desktop) RecordingStarted() { d.send(d.notify, appName, "Recording started") }
func (d *Desktop) RecordingEnded()   { d.send(d.notify, appName, "Recording ended") }
func (d *Desktop) Transcribing()     { d.send(d.notify, appName, "Transcribing...") }
func (d *Desktop) Cancelled()        { d.send(d.notify, appName, "Recording cancelled") }
func (d *Desktop) Error(msg string)  { d.send(d.alert, appName+" error", msg) }

func (d *Desktop) Notify(title, message string) { d.send(d.notify, title, message) }

// Log writes notifications to the structured log only.
type Log struct {
	log zerolog.Logger
}

func NewLog() *Log { return &Log{log: logging.For("notify")} }

func (l *Log) RecordingStarted() { l.log.Info().Msg("recording started") }
func (l *Log) RecordingEnded()   { l.log.Info().Msg("recording ended") }
func (l *Log) Transcribing()     { l.log.Info().Msg("transcribing") }
func (l *Log) Cancelled()        { l.log.Info().Msg("recording cancelled") }
func (l *Log) Error(msg string)  { l.log.Error().Msg(msg) }

func (l *Log) Notify(title, message string) {
	l.log.Info().Str("title", title).Msg(message)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingStarted()     {}
func (Nop) RecordingEnded()       {}
func (Nop) Transcribing()         {}
func (Nop) Cancelled()            {}
func (Nop) Error(string)          {}
func (Nop) Notify(string, string) {}
