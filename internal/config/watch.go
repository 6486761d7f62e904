package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the configuration at path whenever the file is written,
// created or renamed into place, and passes the result to fn. A reload that
// fails is reported to fn with its error. opts are applied to every reload.
//
// The file's directory is watched rather than the file itself so that
// atomic replace-by-rename saves are seen. Watch blocks until ctx is done
// and returns ctx.Err().
func Watch(ctx context.Context, path string, fn func(Config, error), opts ...Option) error {
	if path == "" {
		return ErrNoPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(absPath), err)
	}
	glog.V(1).Infof("config: watching %s", absPath)

	// Stopped timer; reset on each relevant event.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != absPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			glog.V(2).Infof("config: %s %s", ev.Op, ev.Name)
			timer.Reset(watchDebounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			glog.Warningf("config: watcher error: %v", err)

		case <-timer.C:
			cfg, err := Load(absPath, opts...)
			if err != nil {
				glog.Warningf("config: reload %s: %v", absPath, err)
			} else {
				glog.V(1).Infof("config: reloaded %s", absPath)
			}
			fn(cfg, err)
		}
	}
}
