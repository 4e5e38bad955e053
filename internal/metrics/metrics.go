// Package metrics records AddConfig outcomes as Prometheus metrics.
//
// Metrics are exported by writing the registry to a node_exporter
// textfile. Each CLI run starts from the counter values of the previous
// textfile (see Restore), so totals accumulate across runs; gauges describe
// the most recent run only.
package metrics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/roach88/ratelimits/internal/ruleset"
)

// Metric names.
const (
	NameConfigsCommitted = "ratelimits_configs_committed_total"
	NameRules            = "ratelimits_rules_total"
	NameFailures         = "ratelimits_config_failures_total"
	NameCurrentVersion   = "ratelimits_current_version"
	NameLastDuration     = "ratelimits_last_add_config_duration_seconds"
)

// Rule outcome label values.
const (
	OutcomeAdded   = "added"
	OutcomeReused  = "reused"
	OutcomeRemoved = "removed"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	ConfigsCommitted prometheus.Counter
	Rules            *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	CurrentVersion   prometheus.Gauge
	LastDuration     prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ConfigsCommitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: NameConfigsCommitted,
				Help: "Total number of config versions committed, across runs",
			},
		),

		Rules: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: NameRules,
				Help: "Rules in committed configs by outcome, across runs",
			},
			[]string{"outcome"},
		),

		Rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: NameFailures,
				Help: "Total number of failed AddConfig calls by error code, across runs",
			},
			[]string{"code"},
		),

		CurrentVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: NameCurrentVersion,
				Help: "Latest committed config version",
			},
		),

		LastDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: NameLastDuration,
				Help: "Duration of the most recent AddConfig call",
			},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCommit records a successful AddConfig.
func (m *Metrics) ObserveCommit(s ruleset.Summary, took time.Duration) {
	m.ConfigsCommitted.Inc()
	m.Rules.WithLabelValues(OutcomeAdded).Add(float64(len(s.Added)))
	m.Rules.WithLabelValues(OutcomeReused).Add(float64(s.Reused))
	m.Rules.WithLabelValues(OutcomeRemoved).Add(float64(len(s.Removed)))
	m.CurrentVersion.Set(float64(s.Version))
	m.LastDuration.Set(took.Seconds())
}

// ObserveFailure records a failed AddConfig under its error code.
func (m *Metrics) ObserveFailure(err error, took time.Duration) {
	m.Rejections.WithLabelValues(string(ruleset.Code(err))).Inc()
	m.LastDuration.Set(took.Seconds())
}

// Restore seeds the collectors from a textfile written by an earlier run.
// Counters resume from their stored totals and the current version gauge
// keeps its value until the next commit. A missing file is not an error.
func (m *Metrics) Restore(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return fmt.Errorf("parse metrics textfile %s: %w", path, err)
	}

	for name, family := range families {
		for _, metric := range family.GetMetric() {
			switch name {
			case NameConfigsCommitted:
				addCounter(m.ConfigsCommitted, metric)
			case NameRules:
				addCounter(m.Rules.WithLabelValues(labelValue(metric, "outcome")), metric)
			case NameFailures:
				addCounter(m.Rejections.WithLabelValues(labelValue(metric, "code")), metric)
			case NameCurrentVersion:
				m.CurrentVersion.Set(metric.GetGauge().GetValue())
			}
		}
	}
	return nil
}

func addCounter(c prometheus.Counter, metric *dto.Metric) {
	if v := metric.GetCounter().GetValue(); v > 0 {
		c.Add(v)
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// WriteTextfile writes the registry in text exposition format to path,
// atomically via a temp file.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
