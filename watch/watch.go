package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/aptible/nativecron/crontab"
	"github.com/aptible/nativecron/prometheus_metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

var (
	DEBOUNCE_DELAY = 100 * time.Millisecond
)

// Loader reads and parses the watched crontab.
type Loader func() (*crontab.Crontab, error)

// Start loads the crontab once, hands it to reload, then reloads it every
// time the file changes until exitCtx is done. A crontab that fails to
// load is logged and skipped; reload only ever sees parsed crontabs.
//
// The parent directory is watched rather than the file so that editors
// replacing the file by rename are noticed.
func Start(
	wg *sync.WaitGroup,
	exitCtx context.Context,
	logger *logrus.Entry,
	path string,
	load Loader,
	reload func(*crontab.Crontab),
	promMetrics *prometheus_metrics.PrometheusMetrics,
) error {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	initial, err := load()
	if err != nil {
		return err
	}
	reload(initial)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(absolutePath)); err != nil {
		watcher.Close()
		return err
	}

	watchLogger := logger.WithFields(logrus.Fields{"path": absolutePath})

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer watcher.Close()

		var pending <-chan time.Time

		for {
			select {
			case <-exitCtx.Done():
				watchLogger.Debug("shutting down")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absolutePath {
					continue
				}
				watchLogger.Debugf("event: %v", event)

				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					watchLogger.Warn("crontab was moved away, waiting for it to come back")
					continue
				}

				// Editors often write several times in a row, only
				// reload once things settle.
				pending = time.After(DEBOUNCE_DELAY)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				watchLogger.Errorf("watcher error: %v", err)

			case <-pending:
				pending = nil

				c, err := load()
				if err != nil {
					watchLogger.Errorf("failed to reload crontab: %v", err)
					observeReload(promMetrics, "failure")
					continue
				}

				watchLogger.Infof("reloaded crontab: %d lines", len(c.Lines()))
				observeReload(promMetrics, "success")
				reload(c)
			}
		}
	}()

	return nil
}

func observeReload(promMetrics *prometheus_metrics.PrometheusMetrics, result string) {
	if promMetrics != nil {
		promMetrics.CrontabReloadsCounter.WithLabelValues(result).Inc()
	}
}
