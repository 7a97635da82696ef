// Package metrics reports tally metrics through slog.
package metrics

import (
	"io"
	"log/slog"
	"time"

	"github.com/uber-go/tally"
)

const (
	Prefix         = "bridge"
	reportInterval = time.Minute
)

// SlogReporter writes every reported value as a debug log line.
type SlogReporter struct {
	log *slog.Logger
}

var _ tally.StatsReporter = (*SlogReporter)(nil)

func NewSlogReporter(log *slog.Logger) *SlogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &SlogReporter{log: log.With("component", "metrics")}
}

func (r *SlogReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.log.Debug("counter", "name", name, "tags", tags, "value", value)
}

func (r *SlogReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.log.Debug("gauge", "name", name, "tags", tags, "value", value)
}

func (r *SlogReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.log.Debug("timer", "name", name, "tags", tags, "value", interval)
}

func (r *SlogReporter) ReportHistogramValueSamples(
	name string,
	tags map[string]string,
	buckets tally.Buckets,
	bucketLowerBound, bucketUpperBound float64,
	samples int64,
) {
	r.log.Debug("histogram", "name", name, "tags", tags,
		"lower", bucketLowerBound, "upper", bucketUpperBound, "samples", samples)
}

func (r *SlogReporter) ReportHistogramDurationSamples(
	name string,
	tags map[string]string,
	buckets tally.Buckets,
	bucketLowerBound, bucketUpperBound time.Duration,
	samples int64,
) {
	r.log.Debug("histogram", "name", name, "tags", tags,
		"lower", bucketLowerBound, "upper", bucketUpperBound, "samples", samples)
}

func (r *SlogReporter) Capabilities() tally.Capabilities { return r }

func (r *SlogReporter) Reporting() bool { return true }

func (r *SlogReporter) Tagging() bool { return true }

func (r *SlogReporter) Flush() {}

// NewRootScope returns the process-wide scope. Closing it flushes the last
// interval.
func NewRootScope(log *slog.Logger) (tally.Scope, io.Closer) {
	return tally.NewRootScope(tally.ScopeOptions{
		Prefix:   Prefix,
		Reporter: NewSlogReporter(log),
	}, reportInterval)
}
