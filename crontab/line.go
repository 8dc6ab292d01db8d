package crontab

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	jobLineMatcher = regexp.MustCompile(
		`^(` + columnPattern + `)\s+(` + columnPattern + `)\s+(` + columnPattern +
			`)\s+(` + columnPattern + `)\s+(` + columnPattern + `)\s+(\S.*)$`,
	)
	systemJobLineMatcher = regexp.MustCompile(
		`^(` + columnPattern + `)\s+(` + columnPattern + `)\s+(` + columnPattern +
			`)\s+(` + columnPattern + `)\s+(` + columnPattern + `)\s+([A-Za-z0-9_\-]+)\s+(\S.*)$`,
	)
)

func parseBlank(raw string) error {
	if raw != "" {
		return fmt.Errorf("%w: a blank line must be empty, got %q", ErrFormat, raw)
	}
	return nil
}

type Comment struct {
	Text string
}

func (c *Comment) Parse(raw string) error {
	if !strings.HasPrefix(raw, "#") {
		return fmt.Errorf("%w: a comment line must start with a # character", ErrFormat)
	}
	c.Text = raw[1:]
	return nil
}

func (c *Comment) Build() string {
	return "#" + c.Text
}

type EnvironmentSetting struct {
	Name  string
	Value string
}

func (e *EnvironmentSetting) Parse(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	if !ok {
		return fmt.Errorf("%w: environment settings must be in the format name=value", ErrFormat)
	}
	e.Name, e.Value = name, value
	return nil
}

func (e *EnvironmentSetting) Build() string {
	return e.Name + "=" + e.Value
}

// Job is a scheduled command. User is only written out when IncludeUser
// is set, which is the case for system and drop-in crontabs.
type Job struct {
	Schedule    *Schedule
	User        string
	Command     string
	includeUser bool
}

func NewJob(includeUser bool) *Job {
	return &Job{Schedule: NewSchedule(), includeUser: includeUser}
}

func ParseJob(raw string, includeUser bool) (*Job, error) {
	job := NewJob(includeUser)
	if err := job.Parse(raw); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *Job) IncludeUser() bool {
	return j.includeUser
}

func (j *Job) SetIncludeUser(includeUser bool) {
	j.includeUser = includeUser
}

func (j *Job) matcher() *regexp.Regexp {
	if j.includeUser {
		return systemJobLineMatcher
	}
	return jobLineMatcher
}

// Parse replaces the schedule, user and command. The job is left untouched
// when an error is returned.
func (j *Job) Parse(raw string) error {
	m := j.matcher().FindStringSubmatch(raw)
	if m == nil {
		return fmt.Errorf("%w: cron job line %q does not match the expected format", ErrFormat, raw)
	}

	schedule := NewSchedule()
	if err := schedule.setColumns(m[1], m[2], m[3], m[4], m[5]); err != nil {
		return err
	}

	j.Schedule = schedule
	if j.includeUser {
		j.User = m[6]
		j.Command = m[7]
	} else {
		j.Command = m[6]
	}
	return nil
}

func (j *Job) Build() (string, error) {
	parts := []string{j.Schedule.Build()}
	if j.includeUser {
		if j.User == "" {
			return "", ErrUserRequired
		}
		parts = append(parts, j.User)
	}
	parts = append(parts, j.Command)
	return strings.Join(parts, " "), nil
}

type LineKind int

const (
	BlankLine LineKind = iota
	CommentLine
	EnvironmentLine
	JobLine
)

func (k LineKind) String() string {
	switch k {
	case BlankLine:
		return "blank"
	case CommentLine:
		return "comment"
	case EnvironmentLine:
		return "environment"
	case JobLine:
		return "job"
	}
	return fmt.Sprintf("LineKind(%d)", int(k))
}

// Line is one physical line of a crontab. Exactly one payload, selected by
// Kind, is set.
type Line struct {
	kind    LineKind
	comment *Comment
	env     *EnvironmentSetting
	job     *Job
}

func NewBlankLine() *Line {
	return &Line{kind: BlankLine}
}

func NewCommentLine(text string) *Line {
	return &Line{kind: CommentLine, comment: &Comment{Text: text}}
}

func NewEnvironmentLine(name, value string) *Line {
	return &Line{kind: EnvironmentLine, env: &EnvironmentSetting{Name: name, Value: value}}
}

func NewJobLine(job *Job) *Line {
	return &Line{kind: JobLine, job: job}
}

func (l *Line) Kind() LineKind {
	return l.kind
}

func (l *Line) Comment() (*Comment, bool) {
	return l.comment, l.kind == CommentLine
}

func (l *Line) Environment() (*EnvironmentSetting, bool) {
	return l.env, l.kind == EnvironmentLine
}

func (l *Line) Job() (*Job, bool) {
	return l.job, l.kind == JobLine
}

func (l *Line) Build() (string, error) {
	switch l.kind {
	case BlankLine:
		return "", nil
	case CommentLine:
		return l.comment.Build(), nil
	case EnvironmentLine:
		return l.env.Build(), nil
	case JobLine:
		return l.job.Build()
	}
	return "", fmt.Errorf("unknown line kind %v", l.kind)
}
