package manager

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/aptible/nativecron/crontab"
	"github.com/aptible/nativecron/filesystem"
	"github.com/aptible/nativecron/prometheus_metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	calls []string
}

func (l *fakeLocator) LocateSystemCrontab() (string, error) {
	l.calls = append(l.calls, "system")
	return "crontab-file", nil
}

func (l *fakeLocator) LocateUserCrontab(username string) (string, error) {
	l.calls = append(l.calls, "user:"+username)
	return "crontab-file", nil
}

func (l *fakeLocator) LocateDropInCrontab(name string) (string, error) {
	l.calls = append(l.calls, "dropin:"+name)
	return "crontab-file", nil
}

type fakeFileHandler struct {
	content *string
	calls   []string
	failOn  string
}

func (h *fakeFileHandler) record(call string) error {
	h.calls = append(h.calls, call)
	if h.failOn != "" && h.failOn == call {
		return errors.New("failed: " + call)
	}
	return nil
}

func (h *fakeFileHandler) Read(path string) (string, bool, error) {
	if err := h.record("read " + path); err != nil {
		return "", false, err
	}
	if h.content == nil {
		return "", false, nil
	}
	return *h.content, true, nil
}

func (h *fakeFileHandler) CreateFile(path string) error {
	return h.record("create " + path)
}

func (h *fakeFileHandler) SetPermissions(path string, mode os.FileMode) error {
	return h.record(fmt.Sprintf("chmod %s %o", path, mode))
}

func (h *fakeFileHandler) SetOwner(path string, owner string) error {
	return h.record(fmt.Sprintf("chown %s %s", path, owner))
}

func (h *fakeFileHandler) Write(path string, content string) error {
	return h.record(fmt.Sprintf("write %s %q", path, content))
}

func stringPtr(s string) *string {
	return &s
}

var readTestCases = []struct {
	kind     Kind
	name     string
	content  *string
	locate   string
	system   bool
	numLines int
}{
	{KindSystem, "", nil, "system", true, 0},
	{KindSystem, "", stringPtr("#test system crontab\n\n17 * * * * root my-command\n"), "system", true, 4},
	{KindDropIn, "app", nil, "dropin:app", true, 0},
	{KindDropIn, "app", stringPtr("#test drop-in crontab\n\n17 * * * * root my-command\n"), "dropin:app", true, 4},
	{KindUser, "admin", nil, "user:admin", false, 0},
	{KindUser, "admin", stringPtr("#test user crontab\n\n17 * * * * my-command\n"), "user:admin", false, 4},
}

func TestRead(t *testing.T) {
	for _, tt := range readTestCases {
		label := fmt.Sprintf("Read(%s, %q) with content %v", tt.kind, tt.name, tt.content != nil)

		locator := &fakeLocator{}
		files := &fakeFileHandler{content: tt.content}
		m := New(locator, files)

		c, err := m.Read(tt.kind, tt.name)
		if !assert.NoError(t, err, label) {
			continue
		}

		assert.Equal(t, []string{tt.locate}, locator.calls, label)
		assert.Equal(t, []string{"read crontab-file"}, files.calls, label)
		assert.Equal(t, tt.system, c.IsSystemCrontab(), label)

		lines := c.Lines()
		if assert.Len(t, lines, tt.numLines, label) && tt.numLines > 0 {
			assert.Equal(t, crontab.CommentLine, lines[0].Kind(), label)
			assert.Equal(t, crontab.BlankLine, lines[1].Kind(), label)
			assert.Equal(t, crontab.JobLine, lines[2].Kind(), label)
			assert.Equal(t, crontab.BlankLine, lines[3].Kind(), label)
		}
	}
}

func TestReadInvalidCrontab(t *testing.T) {
	files := &fakeFileHandler{content: stringPtr("17 * * * * my-command\n")}
	m := New(&fakeLocator{}, files)

	c, err := m.ReadSystemCrontab()
	assert.Nil(t, c)
	assert.ErrorIs(t, err, crontab.ErrUnparseableLine)
	assert.Contains(t, err.Error(), "crontab-file")
}

func TestReadFileError(t *testing.T) {
	files := &fakeFileHandler{failOn: "read crontab-file"}
	m := New(&fakeLocator{}, files)

	_, err := m.ReadUserCrontab("foo")
	assert.EqualError(t, err, "failed: read crontab-file")
}

var writeMismatchTestCases = []struct {
	kind   Kind
	system bool
	err    error
}{
	{KindSystem, false, ErrNotSystemCrontab},
	{KindDropIn, false, ErrNotSystemCrontab},
	{KindUser, true, ErrSystemCrontab},
}

func TestWriteRejectsMismatchedCrontab(t *testing.T) {
	for _, tt := range writeMismatchTestCases {
		label := fmt.Sprintf("Write(%s) with system=%v", tt.kind, tt.system)

		locator := &fakeLocator{}
		files := &fakeFileHandler{}
		m := New(locator, files)

		err := m.Write(tt.kind, crontab.New(tt.system), "app")
		assert.ErrorIs(t, err, tt.err, label)
		assert.Empty(t, files.calls, label)
		assert.Empty(t, locator.calls, label)
	}
}

func TestWriteMismatchMessages(t *testing.T) {
	m := New(&fakeLocator{}, &fakeFileHandler{})
	assert.EqualError(t, m.WriteSystemCrontab(crontab.New(false)), "the crontab is not a system crontab")
	assert.EqualError(t, m.WriteUserCrontab(crontab.New(true), "app"), "the crontab is a system crontab")
}

func newTestCrontab(t *testing.T, system bool, content string) *crontab.Crontab {
	c := crontab.New(system)
	require.NoError(t, c.Parse(content))
	return c
}

var writeTestCases = []struct {
	kind    Kind
	name    string
	system  bool
	content string
	locate  string
	owner   string
}{
	{KindSystem, "", true, "17 * * * * root my-command", "system", "root"},
	{KindDropIn, "app", true, "17 * * * * root my-command", "dropin:app", "root"},
	{KindUser, "foo", false, "17 * * * * my-command", "user:foo", "foo"},
}

func TestWrite(t *testing.T) {
	for _, tt := range writeTestCases {
		label := fmt.Sprintf("Write(%s, %q)", tt.kind, tt.name)

		locator := &fakeLocator{}
		files := &fakeFileHandler{}
		m := New(locator, files)

		err := m.Write(tt.kind, newTestCrontab(t, tt.system, tt.content), tt.name)
		if !assert.NoError(t, err, label) {
			continue
		}

		assert.Equal(t, []string{tt.locate}, locator.calls, label)
		assert.Equal(t, []string{
			"create crontab-file",
			"chmod crontab-file 600",
			"chown crontab-file " + tt.owner,
			fmt.Sprintf("write crontab-file %q", tt.content),
		}, files.calls, label)
	}
}

func TestWriteBuildFailureTouchesNothing(t *testing.T) {
	c := newTestCrontab(t, true, "* * * * * root cmd")
	c.Jobs()[0].User = ""

	files := &fakeFileHandler{}
	err := New(&fakeLocator{}, files).WriteSystemCrontab(c)
	assert.ErrorIs(t, err, crontab.ErrUserRequired)
	assert.Empty(t, files.calls)
}

func TestWriteStopsAtFirstFailure(t *testing.T) {
	files := &fakeFileHandler{failOn: "chmod crontab-file 600"}
	err := New(&fakeLocator{}, files).WriteSystemCrontab(crontab.New(true))
	assert.Error(t, err)
	assert.Equal(t, []string{"create crontab-file", "chmod crontab-file 600"}, files.calls)
}

func TestMetrics(t *testing.T) {
	metrics := prometheus_metrics.New("", prometheus.NewRegistry())
	files := &fakeFileHandler{content: stringPtr("# c\nA=b\n* * * * * root cmd")}
	m := New(&fakeLocator{}, files, WithMetrics(metrics))

	c, err := m.ReadSystemCrontab()
	require.NoError(t, err)
	require.NoError(t, m.WriteSystemCrontab(c))
	assert.Error(t, m.WriteUserCrontab(c, "foo"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CrontabReadsCounter.WithLabelValues("system")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CrontabWritesCounter.WithLabelValues("system")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CrontabFailuresCounter.WithLabelValues("user", "write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CrontabLinesGauge.WithLabelValues("system", "job")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CrontabLinesGauge.WithLabelValues("system", "blank")))
}

func TestRoundTripThroughFileHandler(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := filesystem.NewFileHandler(fs, filesystem.WithOwnerLookup(func(string) (int, int, error) {
		return 0, 0, nil
	}))
	m := New(filesystem.DebianLocator{Root: "/srv"}, files)

	c, err := m.ReadUserCrontab("alice")
	require.NoError(t, err)
	assert.Empty(t, c.Lines())

	job, err := crontab.ParseJob("*/5 * * * * backup --all", false)
	require.NoError(t, err)
	c.Add(crontab.NewCommentLine(" managed"), crontab.NewJobLine(job))
	require.NoError(t, m.WriteUserCrontab(c, "alice"))

	content, err := afero.ReadFile(fs, "/srv/var/spool/cron/alice")
	require.NoError(t, err)
	assert.Equal(t, "# managed\n*/5 * * * * backup --all", string(content))

	info, err := fs.Stat("/srv/var/spool/cron/alice")
	require.NoError(t, err)
	assert.Equal(t, FileMode, info.Mode().Perm())

	reread, err := m.ReadUserCrontab("alice")
	require.NoError(t, err)
	require.Len(t, reread.Jobs(), 1)
	assert.Equal(t, "backup --all", reread.Jobs()[0].Command)
}

func TestLocate(t *testing.T) {
	m := New(filesystem.DebianLocator{Root: "/srv"}, &fakeFileHandler{})

	for _, tc := range []struct {
		kind     Kind
		name     string
		expected string
	}{
		{KindSystem, "", "/srv/etc/crontab"},
		{KindUser, "alice", "/srv/var/spool/cron/alice"},
		{KindDropIn, "backup", "/srv/etc/cron.d/backup"},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			path, err := m.Locate(tc.kind, tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, path)
		})
	}

	_, err := m.Locate(Kind("weekly"), "")
	assert.ErrorContains(t, err, "unknown crontab kind")
}
