package daemon

import (
	"context"
	"fmt"

	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/notify"
	"github.com/uttertype/uttertype/internal/pipeline"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/recording/portaudio"
	"github.com/uttertype/uttertype/internal/transcriber"
	"github.com/uttertype/uttertype/internal/vad"
)

// BuildDeps creates the production collaborators selected by cfg.
// cfg must already be valid.
func BuildDeps(ctx context.Context, cfg *config.Config) (pipeline.Deps, error) {
	newSource, err := sourceFactory(cfg)
	if err != nil {
		return pipeline.Deps{}, err
	}

	backend, err := transcriber.New(ctx, cfg.ToTranscriberConfig())
	if err != nil {
		return pipeline.Deps{}, &config.Error{Field: "transcription.provider", Err: err}
	}

	notifier, err := notify.New(cfg.Notifications.Type, cfg.Notifications.Enabled)
	if err != nil {
		return pipeline.Deps{}, &config.Error{Field: "notifications.type", Err: err}
	}

	return pipeline.Deps{
		NewSource: newSource,
		Gate:      vad.New(cfg.ToVADConfig()),
		Backend:   backend,
		Injector:  injection.NewInjector(cfg.ToInjectionConfig()),
		Notifier:  notifier,
	}, nil
}

func sourceFactory(cfg *config.Config) (func() recording.Source, error) {
	rc := cfg.ToRecordingConfig()
	switch cfg.Recording.Backend {
	case recording.BackendPipeWire:
		return func() recording.Source { return recording.NewRecorder(rc) }, nil
	case recording.BackendPortAudio, "":
		return func() recording.Source { return portaudio.NewRecorder(rc) }, nil
	default:
		return nil, &config.Error{
			Field: "recording.backend",
			Err:   fmt.Errorf("unknown backend %q", cfg.Recording.Backend),
		}
	}
}
