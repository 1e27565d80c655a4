package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/logging"
)

// Watcher reports changes to the config file. The running daemon keeps
// its configuration; a change only tells the user to restart.
type Watcher struct {
	path     string
	onChange func()
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func NewWatcher(path string, onChange func()) *Watcher {
	return &Watcher{path: path, onChange: onChange, log: logging.For("config")}
}

// Start watches the directory of the config file so that editors which
// replace the file on save are noticed too.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.loop(ctx)

	w.log.Debug().Str("path", w.path).Msg("watching for changes")
	return nil
}

func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	name := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Warn().Str("path", event.Name).Msg("config file changed, restart uttertype to apply")
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")

		case <-ctx.Done():
			return
		}
	}
}
