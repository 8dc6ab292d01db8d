package crontab

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Characters stripped from the start of every line before classification.
const leadingSpace = " \t\r\v\x00"

// Crontab is the ordered list of lines of one crontab file. System-style
// crontabs (/etc/crontab, drop-ins) carry a user field on every job line.
//
// A Crontab is not safe for concurrent use.
type Crontab struct {
	system bool
	lines  []*Line
}

func New(system bool) *Crontab {
	return &Crontab{system: system}
}

// ParseCrontab reads a whole crontab from reader.
func ParseCrontab(reader io.Reader, system bool) (*Crontab, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	c := New(system)
	if err := c.Parse(string(content)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Crontab) IsSystemCrontab() bool {
	return c.system
}

// SetIsSystemCrontab also switches every job line already held, which
// changes how they build.
func (c *Crontab) SetIsSystemCrontab(system bool) {
	c.system = system
	for _, line := range c.lines {
		if job, ok := line.Job(); ok {
			job.SetIncludeUser(system)
		}
	}
}

// Lines returns a copy of the line list; the lines themselves are shared.
func (c *Crontab) Lines() []*Line {
	lines := make([]*Line, len(c.lines))
	copy(lines, c.lines)
	return lines
}

func (c *Crontab) Jobs() []*Job {
	jobs := make([]*Job, 0)
	for _, line := range c.lines {
		if job, ok := line.Job(); ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Environ returns the environment assignments; later assignments of the
// same name win.
func (c *Crontab) Environ() map[string]string {
	environ := make(map[string]string)
	for _, line := range c.lines {
		if env, ok := line.Environment(); ok {
			environ[env.Name] = env.Value
		}
	}
	return environ
}

func (c *Crontab) Add(lines ...*Line) {
	c.lines = append(c.lines, lines...)
}

// Insert places lines before the line at index. An index past the end
// appends.
func (c *Crontab) Insert(index int, lines ...*Line) {
	if index < 0 {
		index = 0
	}
	if index >= len(c.lines) {
		c.Add(lines...)
		return
	}
	merged := make([]*Line, 0, len(c.lines)+len(lines))
	merged = append(merged, c.lines[:index]...)
	merged = append(merged, lines...)
	c.lines = append(merged, c.lines[index:]...)
}

// Remove drops the first occurrence of line, compared by identity.
func (c *Crontab) Remove(line *Line) bool {
	for i, l := range c.lines {
		if l == line {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveWhere drops every line for which filter returns true and reports
// how many were removed.
func (c *Crontab) RemoveWhere(filter func(*Line) bool) int {
	kept := make([]*Line, 0, len(c.lines))
	for _, line := range c.lines {
		if !filter(line) {
			kept = append(kept, line)
		}
	}
	removed := len(c.lines) - len(kept)
	c.lines = kept
	return removed
}

func (c *Crontab) classify(line string) (*Line, error) {
	if strings.HasPrefix(line, "#") {
		comment := &Comment{}
		if err := comment.Parse(line); err != nil {
			return nil, err
		}
		return &Line{kind: CommentLine, comment: comment}, nil
	}

	if line == "" {
		if err := parseBlank(line); err != nil {
			return nil, err
		}
		return NewBlankLine(), nil
	}

	job := NewJob(c.system)
	if job.matcher().MatchString(line) {
		logrus.Debugf("job line (system: %v): %s", c.system, line)
		if err := job.Parse(line); err != nil {
			return nil, err
		}
		return NewJobLine(job), nil
	}

	if strings.Contains(line, "=") {
		env := &EnvironmentSetting{}
		if err := env.Parse(line); err != nil {
			return nil, err
		}
		return &Line{kind: EnvironmentLine, env: env}, nil
	}

	return nil, fmt.Errorf("%w: not a comment, environment setting or cron job line", ErrFormat)
}

// Parse replaces the held lines with the lines of content. On error the
// crontab keeps its previous lines.
func (c *Crontab) Parse(content string) error {
	rawLines := strings.Split(content, "\n")
	lines := make([]*Line, 0, len(rawLines))

	for i, rawLine := range rawLines {
		line, err := c.classify(strings.TrimLeft(rawLine, leadingSpace))
		if err != nil {
			return fmt.Errorf("%w: line %d: %q: %w", ErrUnparseableLine, i+1, rawLine, err)
		}
		lines = append(lines, line)
	}

	c.lines = lines
	return nil
}

// Build joins the lines with "\n". No trailing newline is added; a file
// ending in a newline parses to a trailing blank line.
func (c *Crontab) Build() (string, error) {
	built := make([]string, len(c.lines))
	for i, line := range c.lines {
		b, err := line.Build()
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i+1, err)
		}
		built[i] = b
	}
	return strings.Join(built, "\n"), nil
}
