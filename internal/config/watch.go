package config

import (
	"context"
	"os"
	"time"
)

type rateWatcher struct {
	path     string
	onUpdate func(*RateFile)
	onError  func(error)

	modTime time.Time
	size    int64
}

// changed records the file's current stat and reports whether it differs
// from the last one seen. A file that cannot be stat'ed counts as unchanged.
func (w *rateWatcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return false
	}
	w.modTime, w.size = info.ModTime(), info.Size()
	return true
}

func (w *rateWatcher) reload() error {
	rf, err := LoadRateFile(w.path)
	if err != nil {
		return err
	}
	if w.onUpdate != nil {
		w.onUpdate(rf)
	}
	return nil
}

func (w *rateWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.changed() {
				continue
			}
			// A broken revision is reported once; the next edit retries.
			if err := w.reload(); err != nil && w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// WatchRates loads the rate file, hands it to onUpdate and keeps polling it
// in the background until ctx is done. Only the initial load error is
// returned; later invalid revisions go to onError and the previous rates
// stay in effect.
func WatchRates(ctx context.Context, path string, interval time.Duration, onUpdate func(*RateFile), onError func(error)) error {
	if path == "" {
		path = "configs/rates.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &rateWatcher{path: path, onUpdate: onUpdate, onError: onError}
	w.changed()
	if err := w.reload(); err != nil {
		return err
	}
	go w.run(ctx, interval)
	return nil
}
