package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aptible/nativecron/config"
	"github.com/aptible/nativecron/crontab"
	"github.com/aptible/nativecron/filesystem"
	"github.com/aptible/nativecron/log/formatter"
	"github.com/aptible/nativecron/log/hook"
	"github.com/aptible/nativecron/manager"
	"github.com/aptible/nativecron/prometheus_metrics"
	"github.com/aptible/nativecron/watch"
	"github.com/evalphobia/logrus_sentry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const usage = `Usage: %s [OPTIONS] COMMAND

Commands:
  show          print the crontab
  jobs          list jobs with their next run
  add-job       append a job (--schedule, --command, --user, --comment)
  remove-jobs   remove jobs whose command contains --contains
  set-env       set an environment variable: set-env NAME=VALUE
  watch         print jobs every time the crontab changes

The crontab is selected with --kind (system, user, dropin) and --name.

Options:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(2)
		}
		logrus.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("nativecron", pflag.ContinueOnError)
	configFile := flagSet.String("config", "", "path to a config file (default: search nativecron.yaml)")
	platform := flagSet.String("platform", "", "crontab layout: auto, debian or darwin")
	root := flagSet.String("root", "", "prefix for every crontab path")
	kind := flagSet.String("kind", string(manager.KindSystem), "crontab to operate on: system, user or dropin")
	name := flagSet.String("name", "", "user name (--kind user) or drop-in name (--kind dropin)")
	debug := flagSet.Bool("debug", false, "enable debug logging")
	json := flagSet.Bool("json", false, "enable JSON logging")
	raw := flagSet.Bool("raw", false, "log bare messages")
	logFormat := flagSet.String("log-format", "", "log template, e.g. '%time %level %message'")
	splitLogs := flagSet.Bool("split-logs", false, "send debug and info logs to stdout, warnings and errors to stderr")
	sentryDsn := flagSet.String("sentry-dsn", "", "enable Sentry error logging, using provided DSN")
	sentryEnvironment := flagSet.String("sentry-environment", "", "specify the application's environment for Sentry error reporting")
	sentryRelease := flagSet.String("sentry-release", "", "specify the application's release for Sentry error reporting")
	metricsListen := flagSet.String("metrics-listen", "", "address to expose Prometheus metrics on during watch (port defaults to 9746)")
	schedule := flagSet.String("schedule", "* * * * *", "schedule of the job to add")
	user := flagSet.String("user", "root", "user of the job to add (system and drop-in crontabs)")
	command := flagSet.String("command", "", "command of the job to add")
	comment := flagSet.String("comment", "", "comment written above the job to add")
	contains := flagSet.String("contains", "", "remove jobs whose command contains this text")

	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, usage, "nativecron")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() < 1 {
		flagSet.Usage()
		return pflag.ErrHelp
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	if flagSet.Changed("platform") {
		cfg.Platform = *platform
	}
	if flagSet.Changed("root") {
		cfg.Root = *root
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	switch {
	case *json:
		cfg.Log.Format = "json"
	case *raw:
		cfg.Log.Format = "raw"
	case *logFormat != "":
		cfg.Log.Format = "custom"
		cfg.Log.Template = *logFormat
	}
	if *splitLogs {
		cfg.Log.Split = true
	}
	if flagSet.Changed("sentry-dsn") {
		cfg.Sentry.DSN = *sentryDsn
	}
	if flagSet.Changed("sentry-environment") {
		cfg.Sentry.Environment = *sentryEnvironment
	}
	if flagSet.Changed("sentry-release") {
		cfg.Sentry.Release = *sentryRelease
	}
	if flagSet.Changed("metrics-listen") {
		cfg.Metrics.Listen = *metricsListen
	}

	if err := configureLogging(cfg); err != nil {
		return err
	}

	locator, err := filesystem.NewLocator(cfg.Platform, cfg.Root)
	if err != nil {
		return err
	}

	logger := logrus.WithFields(logrus.Fields{"kind": *kind})
	promMetrics := prometheus_metrics.New(cfg.Metrics.Listen, prometheus.NewRegistry())

	a := &app{
		manager: manager.New(
			locator,
			filesystem.NewOsFileHandler(),
			manager.WithLogger(logger),
			manager.WithMetrics(promMetrics),
		),
		kind:   manager.Kind(*kind),
		name:   *name,
		out:    os.Stdout,
		logger: logger,
	}

	switch cmd := flagSet.Arg(0); cmd {
	case "show":
		return a.show()
	case "jobs":
		return a.jobs(time.Now())
	case "add-job":
		return a.addJob(*schedule, *user, *command, *comment)
	case "remove-jobs":
		_, err := a.removeJobs(*contains)
		return err
	case "set-env":
		if flagSet.NArg() != 2 {
			return fmt.Errorf("usage: set-env NAME=VALUE")
		}
		return a.setEnv(flagSet.Arg(1))
	case "watch":
		return runWatch(a, promMetrics, cfg.Metrics.Listen)
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch cfg.Log.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "raw":
		logrus.SetFormatter(&formatter.RawFormatter{})
	case "custom":
		logrus.SetFormatter(&formatter.CustomFieldFormatter{LogFormat: cfg.Log.Template})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format: %q", cfg.Log.Format)
	}

	if cfg.Log.Split {
		hook.RegisterSplitLogger(logrus.StandardLogger(), os.Stdout, os.Stderr)
	}

	if cfg.Sentry.DSN != "" {
		sh, err := logrus_sentry.NewSentryHook(cfg.Sentry.DSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return fmt.Errorf("could not init sentry logger: %w", err)
		}
		sh.Timeout = 5 * time.Second

		if cfg.Sentry.Environment != "" {
			sh.SetEnvironment(cfg.Sentry.Environment)
		}
		if cfg.Sentry.Release != "" {
			sh.SetRelease(cfg.Sentry.Release)
		}

		logrus.AddHook(sh)
	}

	return nil
}

func runWatch(a *app, promMetrics *prometheus_metrics.PrometheusMetrics, listen string) error {
	path, err := a.manager.Locate(a.kind, a.name)
	if err != nil {
		return err
	}

	exitCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	err = watch.Start(&wg, exitCtx, a.logger, path, a.read, func(c *crontab.Crontab) {
		if err := a.printJobs(c, time.Now()); err != nil {
			a.logger.Error(err)
		}
	}, promMetrics)
	if err != nil {
		return err
	}

	if listen != "" {
		go func() {
			if err := promMetrics.InitHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Errorf("prometheus http server failed: %v", err)
			}
		}()
	}

	<-exitCtx.Done()
	a.logger.Info("received signal, shutting down")
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return promMetrics.ShutdownHTTPServer(shutdownCtx)
}
