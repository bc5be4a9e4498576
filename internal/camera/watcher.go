package camera

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Watcher reloads a calibration file into a Store whenever it changes.
//
// The parent directory is watched rather than the file itself so that
// editors which save by writing a temporary file and renaming it over the
// original are picked up. A file that fails to load or validate is logged
// and the previous model stays published.
type Watcher struct {
	path   string
	store  *Store
	logger zerolog.Logger
	fsw    *fsnotify.Watcher

	// OnReload, if set, is called after every reload attempt with the
	// model that was published or the error that prevented it.
	OnReload func(*Model, error)
}

// NewWatcher starts watching path. Call Run to process events and Close to
// release the underlying watcher.
func NewWatcher(path string, store *Store, logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "error resolving calibration path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "error creating file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrapf(err, "error watching %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:   abs,
		store:  store,
		logger: logger.With().Str("component", "camera_watcher").Str("path", abs).Logger(),
		fsw:    fsw,
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Reload loads the file and publishes it to the store.
func (w *Watcher) Reload() error {
	m, err := LoadModel(w.path)
	if err == nil {
		_, err = w.store.Swap(m)
	}
	if err != nil {
		w.logger.Warn().Err(err).Msg("calibration reload failed, keeping previous model")
	} else {
		w.logger.Info().
			Float64("fx", m.Intrinsics.Fx).
			Float64("fy", m.Intrinsics.Fy).
			Uint64("version", w.store.Version()).
			Msg("calibration reloaded")
	}
	if w.OnReload != nil {
		w.OnReload(m, err)
	}
	return err
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug().Str("op", ev.Op.String()).Msg("calibration file changed")
			_ = w.Reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
