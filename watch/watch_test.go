package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aptible/nativecron/crontab"
	"github.com/aptible/nativecron/prometheus_metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	TEST_CHANNEL_BUFFER_SIZE = 100
	TEST_TIMEOUT             = 5 * time.Second
)

type testHook struct {
	channel chan *logrus.Entry
}

func newTestHook(channel chan *logrus.Entry) *testHook {
	return &testHook{channel: channel}
}

func (hook *testHook) Fire(entry *logrus.Entry) error {
	hook.channel <- entry
	return nil
}

func (hook *testHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func newTestLogger() (*logrus.Entry, chan *logrus.Entry) {
	logger := logrus.New()
	logger.Out = io.Discard
	logger.Level = logrus.InfoLevel

	channel := make(chan *logrus.Entry, TEST_CHANNEL_BUFFER_SIZE)
	hook := newTestHook(channel)
	logger.Hooks.Add(hook)

	return logger.WithFields(logrus.Fields{}), channel
}

func fileLoader(path string) Loader {
	return func() (*crontab.Crontab, error) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		c := crontab.New(false)
		if err := c.Parse(string(content)); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func build(t *testing.T, c *crontab.Crontab) string {
	content, err := c.Build()
	require.NoError(t, err)
	return content
}

func waitForCrontab(t *testing.T, reloads chan *crontab.Crontab) *crontab.Crontab {
	select {
	case c := <-reloads:
		return c
	case <-time.After(TEST_TIMEOUT):
		t.Fatal("timed out waiting for reload")
		return nil
	}
}

func waitForEntry(t *testing.T, entries chan *logrus.Entry, level logrus.Level) *logrus.Entry {
	deadline := time.After(TEST_TIMEOUT)
	for {
		select {
		case entry := <-entries:
			if entry.Level == level {
				return entry
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s log entry", level)
			return nil
		}
	}
}

func TestStartReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crontab")
	require.NoError(t, os.WriteFile(path, []byte("* * * * * first"), 0600))

	logger, entries := newTestLogger()
	metrics := prometheus_metrics.New("", prometheus.NewRegistry())
	reloads := make(chan *crontab.Crontab, 10)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	err := Start(&wg, ctx, logger, path, fileLoader(path), func(c *crontab.Crontab) {
		reloads <- c
	}, metrics)
	require.NoError(t, err)

	assert.Equal(t, "* * * * * first", build(t, waitForCrontab(t, reloads)))

	require.NoError(t, os.WriteFile(path, []byte("this is not a crontab"), 0600))
	entry := waitForEntry(t, entries, logrus.ErrorLevel)
	assert.Contains(t, entry.Message, "failed to reload crontab")
	assert.Empty(t, reloads)

	require.NoError(t, os.WriteFile(path, []byte("*/5 * * * * second"), 0600))
	assert.Equal(t, "*/5 * * * * second", build(t, waitForCrontab(t, reloads)))

	cancel()
	wg.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CrontabReloadsCounter.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CrontabReloadsCounter.WithLabelValues("failure")))
}

func TestStartIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crontab")
	require.NoError(t, os.WriteFile(path, []byte("# only"), 0600))

	logger, _ := newTestLogger()
	reloads := make(chan *crontab.Crontab, 10)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.NoError(t, Start(&wg, ctx, logger, path, fileLoader(path), func(c *crontab.Crontab) {
		reloads <- c
	}, nil))
	waitForCrontab(t, reloads)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0600))

	select {
	case <-reloads:
		t.Fatal("unexpected reload")
	case <-time.After(5 * DEBOUNCE_DELAY):
	}
}

func TestStartFailsOnInitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing")

	logger, _ := newTestLogger()
	var wg sync.WaitGroup

	err := Start(&wg, context.Background(), logger, path, fileLoader(path), func(*crontab.Crontab) {
		t.Fatal("reload must not be called")
	}, nil)
	assert.Error(t, err)
	wg.Wait()
}
