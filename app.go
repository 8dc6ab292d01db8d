package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aptible/nativecron/crontab"
	"github.com/aptible/nativecron/manager"
	"github.com/sirupsen/logrus"
)

// app runs the subcommands against one crontab, selected by kind and name.
type app struct {
	manager *manager.Manager
	kind    manager.Kind
	name    string
	out     io.Writer
	logger  *logrus.Entry
}

func (a *app) read() (*crontab.Crontab, error) {
	return a.manager.Read(a.kind, a.name)
}

func (a *app) write(c *crontab.Crontab) error {
	return a.manager.Write(a.kind, c, a.name)
}

func (a *app) show() error {
	c, err := a.read()
	if err != nil {
		return err
	}

	content, err := c.Build()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(a.out, content)
	return err
}

func (a *app) jobs(now time.Time) error {
	c, err := a.read()
	if err != nil {
		return err
	}
	return a.printJobs(c, now)
}

func (a *app) printJobs(c *crontab.Crontab, now time.Time) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NEXT\tSCHEDULE\tUSER\tCOMMAND")

	for _, job := range c.Jobs() {
		next := "never"
		t, err := job.Schedule.Next(now)
		if err != nil {
			a.logger.Warnf("cannot compute next run of %q: %v", job.Schedule.Build(), err)
			next = "unknown"
		} else if !t.IsZero() {
			next = t.Format(time.RFC3339)
		}

		user := job.User
		if !job.IncludeUser() {
			user = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", next, job.Schedule.Build(), user, job.Command)
	}

	return w.Flush()
}

func (a *app) addJob(schedule, user, command, comment string) error {
	if command == "" {
		return fmt.Errorf("a command is required")
	}

	c, err := a.read()
	if err != nil {
		return err
	}

	s, err := crontab.ParseSchedule(schedule)
	if err != nil {
		return err
	}

	job := crontab.NewJob(c.IsSystemCrontab())
	job.Schedule = s
	job.User = user
	job.Command = command

	if comment != "" {
		c.Add(crontab.NewCommentLine(" " + comment))
	}
	c.Add(crontab.NewJobLine(job))

	if err := a.write(c); err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{"schedule": s.Build(), "command": command}).Info("added job")
	return nil
}

func (a *app) removeJobs(contains string) (int, error) {
	if contains == "" {
		return 0, fmt.Errorf("a command filter is required")
	}

	c, err := a.read()
	if err != nil {
		return 0, err
	}

	removed := c.RemoveWhere(func(line *crontab.Line) bool {
		job, ok := line.Job()
		return ok && strings.Contains(job.Command, contains)
	})
	if removed == 0 {
		return 0, nil
	}

	if err := a.write(c); err != nil {
		return 0, err
	}

	a.logger.Infof("removed %d job(s)", removed)
	return removed, nil
}

// setEnv replaces the value of every existing assignment of the name, or
// appends a new assignment before the first job.
func (a *app) setEnv(assignment string) error {
	setting := &crontab.EnvironmentSetting{}
	if err := setting.Parse(assignment); err != nil {
		return err
	}

	c, err := a.read()
	if err != nil {
		return err
	}

	found := false
	for _, line := range c.Lines() {
		if env, ok := line.Environment(); ok && env.Name == setting.Name {
			env.Value = setting.Value
			found = true
		}
	}

	if !found {
		index := len(c.Lines())
		for i, line := range c.Lines() {
			if line.Kind() == crontab.JobLine {
				index = i
				break
			}
		}
		c.Insert(index, crontab.NewEnvironmentLine(setting.Name, setting.Value))
	}

	return a.write(c)
}
