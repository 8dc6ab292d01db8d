package prometheus_metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultPort = "9746"

type PrometheusMetrics struct {
	CrontabReadsCounter    *prometheus.CounterVec
	CrontabWritesCounter   *prometheus.CounterVec
	CrontabFailuresCounter *prometheus.CounterVec
	CrontabLinesGauge      *prometheus.GaugeVec
	CrontabReloadsCounter  *prometheus.CounterVec
	registry               *prometheus.Registry
	listenAddr             string
	srv                    *http.Server
}

func New(promListenAddr string, registry *prometheus.Registry) *PrometheusMetrics {
	pm := PrometheusMetrics{}

	pm.listenAddr = promListenAddr
	pm.registry = registry

	pm.CrontabReadsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nativecron_crontab_reads",
			Help: "count of crontab reads",
		},
		[]string{"kind"},
	)
	registry.MustRegister(pm.CrontabReadsCounter)

	pm.CrontabWritesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nativecron_crontab_writes",
			Help: "count of crontab writes",
		},
		[]string{"kind"},
	)
	registry.MustRegister(pm.CrontabWritesCounter)

	pm.CrontabFailuresCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nativecron_crontab_failures",
			Help: "count of failed crontab reads and writes",
		},
		[]string{"kind", "operation"},
	)
	registry.MustRegister(pm.CrontabFailuresCounter)

	pm.CrontabLinesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nativecron_crontab_lines",
			Help: "number of lines in the last crontab read or written",
		},
		[]string{"kind", "line_kind"},
	)
	registry.MustRegister(pm.CrontabLinesGauge)

	pm.CrontabReloadsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nativecron_crontab_reloads",
			Help: "count of crontab reloads triggered by file changes",
		},
		[]string{"result"},
	)
	registry.MustRegister(pm.CrontabReloadsCounter)

	return &pm
}

func (p *PrometheusMetrics) Reset() {
	p.CrontabReadsCounter.Reset()
	p.CrontabWritesCounter.Reset()
	p.CrontabFailuresCounter.Reset()
	p.CrontabLinesGauge.Reset()
	p.CrontabReloadsCounter.Reset()
}

func getAddr(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("empty listen address")
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}

	withPort := net.JoinHostPort(addr, DefaultPort)
	if _, _, err := net.SplitHostPort(withPort); err != nil {
		return "", err
	}

	return withPort, nil
}

func (p *PrometheusMetrics) InitHTTPServer() error {
	addr, err := getAddr(p.listenAddr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
             <head><title>nativecron</title></head>
             <body>
             <h1>nativecron</h1>
             <p><a href='/metrics'>Metrics</a></p>
             </body>
             </html>`))
	})

	p.srv = &http.Server{Addr: addr, Handler: mux}
	return p.srv.ListenAndServe()
}

func (p *PrometheusMetrics) ShutdownHTTPServer(c context.Context) error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(c)
}
