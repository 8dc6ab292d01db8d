package manager

import (
	"errors"
	"fmt"
	"os"

	"github.com/aptible/nativecron/crontab"
	"github.com/aptible/nativecron/prometheus_metrics"
	"github.com/sirupsen/logrus"
)

var (
	ErrSystemCrontab    = errors.New("the crontab is a system crontab")
	ErrNotSystemCrontab = errors.New("the crontab is not a system crontab")
)

const (
	FileMode    os.FileMode = 0600
	SystemOwner             = "root"
)

// Kind identifies which crontab file an operation targets.
type Kind string

const (
	KindSystem Kind = "system"
	KindUser   Kind = "user"
	KindDropIn Kind = "dropin"
)

// System and drop-in crontabs carry a user field on every job.
func (k Kind) System() bool {
	return k != KindUser
}

type Locator interface {
	LocateSystemCrontab() (string, error)
	LocateUserCrontab(username string) (string, error)
	LocateDropInCrontab(name string) (string, error)
}

type FileHandler interface {
	Read(path string) (content string, ok bool, err error)
	CreateFile(path string) error
	SetPermissions(path string, mode os.FileMode) error
	SetOwner(path string, owner string) error
	Write(path string, content string) error
}

type Manager struct {
	locator Locator
	files   FileHandler
	logger  *logrus.Entry
	metrics *prometheus_metrics.PrometheusMetrics
}

type Option func(*Manager)

func WithLogger(logger *logrus.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *prometheus_metrics.PrometheusMetrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func New(locator Locator, files FileHandler, options ...Option) *Manager {
	m := &Manager{
		locator: locator,
		files:   files,
		logger:  logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

func (m *Manager) ReadSystemCrontab() (*crontab.Crontab, error) {
	return m.read(KindSystem, m.locator.LocateSystemCrontab)
}

func (m *Manager) ReadUserCrontab(username string) (*crontab.Crontab, error) {
	return m.read(KindUser, func() (string, error) {
		return m.locator.LocateUserCrontab(username)
	})
}

func (m *Manager) ReadDropInCrontab(name string) (*crontab.Crontab, error) {
	return m.read(KindDropIn, func() (string, error) {
		return m.locator.LocateDropInCrontab(name)
	})
}

// Read dispatches on kind; name is the user name or drop-in name and is
// ignored for the system crontab.
func (m *Manager) Read(kind Kind, name string) (*crontab.Crontab, error) {
	switch kind {
	case KindSystem:
		return m.ReadSystemCrontab()
	case KindUser:
		return m.ReadUserCrontab(name)
	case KindDropIn:
		return m.ReadDropInCrontab(name)
	}
	return nil, fmt.Errorf("unknown crontab kind: %q", kind)
}

// Locate returns the path of the crontab selected by kind and name.
func (m *Manager) Locate(kind Kind, name string) (string, error) {
	switch kind {
	case KindSystem:
		return m.locator.LocateSystemCrontab()
	case KindUser:
		return m.locator.LocateUserCrontab(name)
	case KindDropIn:
		return m.locator.LocateDropInCrontab(name)
	}
	return "", fmt.Errorf("unknown crontab kind: %q", kind)
}

func (m *Manager) WriteSystemCrontab(c *crontab.Crontab) error {
	return m.write(KindSystem, c, SystemOwner, m.locator.LocateSystemCrontab)
}

func (m *Manager) WriteUserCrontab(c *crontab.Crontab, username string) error {
	return m.write(KindUser, c, username, func() (string, error) {
		return m.locator.LocateUserCrontab(username)
	})
}

func (m *Manager) WriteDropInCrontab(c *crontab.Crontab, name string) error {
	return m.write(KindDropIn, c, SystemOwner, func() (string, error) {
		return m.locator.LocateDropInCrontab(name)
	})
}

func (m *Manager) Write(kind Kind, c *crontab.Crontab, name string) error {
	switch kind {
	case KindSystem:
		return m.WriteSystemCrontab(c)
	case KindUser:
		return m.WriteUserCrontab(c, name)
	case KindDropIn:
		return m.WriteDropInCrontab(c, name)
	}
	return fmt.Errorf("unknown crontab kind: %q", kind)
}

func (m *Manager) read(kind Kind, locate func() (string, error)) (*crontab.Crontab, error) {
	path, err := locate()
	if err != nil {
		m.failed(kind, "read")
		return nil, err
	}

	logger := m.logger.WithFields(logrus.Fields{"kind": string(kind), "path": path})

	content, ok, err := m.files.Read(path)
	if err != nil {
		m.failed(kind, "read")
		return nil, err
	}

	c := crontab.New(kind.System())
	if !ok {
		logger.Debug("crontab does not exist")
	} else if err := c.Parse(content); err != nil {
		m.failed(kind, "read")
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.Debugf("read crontab: %d lines", len(c.Lines()))
	m.observe(kind, c)
	if m.metrics != nil {
		m.metrics.CrontabReadsCounter.WithLabelValues(string(kind)).Inc()
	}

	return c, nil
}

func (m *Manager) write(kind Kind, c *crontab.Crontab, owner string, locate func() (string, error)) error {
	if c.IsSystemCrontab() != kind.System() {
		m.failed(kind, "write")
		if c.IsSystemCrontab() {
			return ErrSystemCrontab
		}
		return ErrNotSystemCrontab
	}

	path, err := locate()
	if err != nil {
		m.failed(kind, "write")
		return err
	}

	// Build first so that a crontab that cannot be serialized never
	// touches the file.
	content, err := c.Build()
	if err != nil {
		m.failed(kind, "write")
		return err
	}

	logger := m.logger.WithFields(logrus.Fields{"kind": string(kind), "path": path, "owner": owner})

	steps := []func() error{
		func() error { return m.files.CreateFile(path) },
		func() error { return m.files.SetPermissions(path, FileMode) },
		func() error { return m.files.SetOwner(path, owner) },
		func() error { return m.files.Write(path, content) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			m.failed(kind, "write")
			return err
		}
	}

	logger.Infof("wrote crontab: %d lines", len(c.Lines()))
	m.observe(kind, c)
	if m.metrics != nil {
		m.metrics.CrontabWritesCounter.WithLabelValues(string(kind)).Inc()
	}

	return nil
}

func (m *Manager) failed(kind Kind, operation string) {
	if m.metrics != nil {
		m.metrics.CrontabFailuresCounter.WithLabelValues(string(kind), operation).Inc()
	}
}

func (m *Manager) observe(kind Kind, c *crontab.Crontab) {
	if m.metrics == nil {
		return
	}

	counts := map[crontab.LineKind]int{
		crontab.BlankLine:       0,
		crontab.CommentLine:     0,
		crontab.EnvironmentLine: 0,
		crontab.JobLine:         0,
	}
	for _, line := range c.Lines() {
		counts[line.Kind()]++
	}
	for lineKind, count := range counts {
		m.metrics.CrontabLinesGauge.WithLabelValues(string(kind), lineKind.String()).Set(float64(count))
	}
}
