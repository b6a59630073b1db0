package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"cryptotracker/pkg/logx"
)

const debounceDelay = 250 * time.Millisecond

// Watch re-reads the config file whenever it changes on disk and invokes
// onChange with the freshly parsed config. Editors often emit several write
// events per save, so events are debounced and content-hashed; a save that
// does not change bytes publishes nothing. Invalid content is logged and the
// previous config stays in effect. Reloads run on the watch goroutine, so
// state like the content hash has a single writer.
//
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	// Watch the directory: editors that replace the file (rename+create)
	// would otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var lastHash uint64
	if b, err := os.ReadFile(path); err == nil {
		lastHash = hashBytes(b)
	}

	reload := func() {
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config reload: read failed", logx.Err(err))
			return
		}
		h := hashBytes(b)
		if h == lastHash {
			return
		}
		cfg, err := Parse(b)
		if err != nil {
			log.Warn("config reload: invalid config kept previous", logx.Err(err))
			return
		}
		lastHash = h
		log.Info("config reloaded", logx.String("path", path))
		onChange(cfg)
	}

	var (
		debounce *time.Timer
		pending  <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			reload()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
				pending = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logx.Err(err))
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
