// Package metrics exposes Prometheus instrumentation for the tile library.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "activecaptain"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder groups the library metrics. A nil *Recorder records nothing.
type Recorder struct {
	applies         *prometheus.CounterVec
	appliedRecords  *prometheus.CounterVec
	applyDuration   *prometheus.HistogramVec
	watermarkSkips  *prometheus.CounterVec
	merges          *prometheus.CounterVec
	mergePages      prometheus.Counter
	installs        *prometheus.CounterVec
	sideloadsActive prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with registerer.
func NewRecorder(registerer prometheus.Registerer) (*Recorder, error) {
	recorder := &Recorder{
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applies_total",
			Help:      "Batch applies by kind and outcome.",
		}, []string{"kind", "outcome"}),
		appliedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applied_records_total",
			Help:      "Records committed by batch applies.",
		}, []string{"kind"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Duration of batch applies including the wait for the write gate.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		watermarkSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watermark_skips_total",
			Help:      "Tile watermark writes skipped because they would not advance the stored value.",
		}, []string{"kind"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_merges_total",
			Help:      "Single tile database merges by outcome.",
		}, []string{"outcome"}),
		mergePages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_merge_pages_total",
			Help:      "Marker pages committed by tile merges.",
		}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_installs_total",
			Help:      "Tile database installs by path taken.",
		}, []string{"path"}),
		sideloadsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sideloads_active",
			Help:      "Sideload guards currently held.",
		}),
	}
	if registerer == nil {
		return recorder, nil
	}
	for _, collector := range []prometheus.Collector{
		recorder.applies,
		recorder.appliedRecords,
		recorder.applyDuration,
		recorder.watermarkSkips,
		recorder.merges,
		recorder.mergePages,
		recorder.installs,
		recorder.sideloadsActive,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return recorder, nil
}

// ObserveApply records one batch apply.
func (r *Recorder) ObserveApply(kind string, records int, started time.Time, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	} else {
		r.appliedRecords.WithLabelValues(kind).Add(float64(records))
	}
	r.applies.WithLabelValues(kind, outcome).Inc()
	r.applyDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// WatermarkSkipped records a watermark write rejected by the ratchet.
func (r *Recorder) WatermarkSkipped(kind string) {
	if r == nil {
		return
	}
	r.watermarkSkips.WithLabelValues(kind).Inc()
}

// ObserveMerge records the outcome of one tile merge.
func (r *Recorder) ObserveMerge(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.merges.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	r.merges.WithLabelValues(OutcomeSuccess).Inc()
}

// MergePageCommitted counts one committed merge page.
func (r *Recorder) MergePageCommitted() {
	if r == nil {
		return
	}
	r.mergePages.Inc()
}

// Install records the path an install took.
func (r *Recorder) Install(path string) {
	if r == nil {
		return
	}
	r.installs.WithLabelValues(path).Inc()
}

// SideloadStarted and SideloadEnded track held sideload guards.
func (r *Recorder) SideloadStarted() {
	if r == nil {
		return
	}
	r.sideloadsActive.Inc()
}

func (r *Recorder) SideloadEnded() {
	if r == nil {
		return
	}
	r.sideloadsActive.Dec()
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
