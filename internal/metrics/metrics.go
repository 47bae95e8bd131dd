package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

const namespace = "drowsy_alarm"

// Metrics implements the engine, tracker and actuator observers.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal        prometheus.Counter
	ticksSkipped      prometheus.Counter
	captureFailures   prometheus.Counter
	roundTripDuration prometheus.Histogram
	samplesTotal      *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	alarmActive       prometheus.Gauge
	alarmActivations  prometheus.Counter
	burstsTotal       prometheus.Counter
	audioUnavailable  prometheus.Counter
	episodeDuration   prometheus.Histogram
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the collectors on a private registry, together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Sampling ticks that started a classifier round trip.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Sampling ticks skipped because a round trip was still in flight.",
		}),
		captureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Frames that could not be captured.",
		}),
		roundTripDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_round_trip_seconds",
			Help:      "Histogram of classifier round trip durations.",
			Buckets:   prometheus.DefBuckets,
		}),
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Classifier samples by derived tracking state.",
		}, []string{"state"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Classifier failures by kind.",
		}, []string{"kind"}),
		alarmActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_active",
			Help:      "1 while the alarm is active.",
		}),
		alarmActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_activations_total",
			Help:      "Alarm activations, one per drowsy episode.",
		}),
		burstsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_bursts_total",
			Help:      "Tone bursts played.",
		}),
		audioUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_unavailable_total",
			Help:      "Activations that fell back to a visual-only alarm.",
		}),
		episodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_duration_seconds",
			Help:      "Histogram of drowsy episode durations.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticksTotal,
		m.ticksSkipped,
		m.captureFailures,
		m.roundTripDuration,
		m.samplesTotal,
		m.failuresTotal,
		m.alarmActive,
		m.alarmActivations,
		m.burstsTotal,
		m.audioUnavailable,
		m.episodeDuration,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TickStarted counts a tick that started a round trip.
func (m *Metrics) TickStarted() {
	if m == nil {
		return
	}

	m.ticksTotal.Inc()
}

// TickSkipped counts a tick skipped because of an in-flight round trip.
func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}

	m.ticksSkipped.Inc()
}

// CaptureFailed counts a failed frame capture.
func (m *Metrics) CaptureFailed() {
	if m == nil {
		return
	}

	m.captureFailures.Inc()
}

// RoundTripFinished observes a classifier round trip.
func (m *Metrics) RoundTripFinished(duration time.Duration, _ error) {
	if m == nil {
		return
	}

	m.roundTripDuration.Observe(duration.Seconds())
}

// SampleApplied counts a sample by state.
func (m *Metrics) SampleApplied(state detection.TrackingState) {
	if m == nil {
		return
	}

	m.samplesTotal.WithLabelValues(state.String()).Inc()
}

// ClassifierFailed counts a failure by kind.
func (m *Metrics) ClassifierFailed(kind string) {
	if m == nil {
		return
	}

	m.failuresTotal.WithLabelValues(kind).Inc()
}

// AlarmActivated tracks an activation.
func (m *Metrics) AlarmActivated() {
	if m == nil {
		return
	}

	m.alarmActive.Set(1)
	m.alarmActivations.Inc()
}

// AlarmDeactivated tracks a deactivation.
func (m *Metrics) AlarmDeactivated() {
	if m == nil {
		return
	}

	m.alarmActive.Set(0)
}

// BurstPlayed counts a played burst.
func (m *Metrics) BurstPlayed() {
	if m == nil {
		return
	}

	m.burstsTotal.Inc()
}

// AudioUnavailable counts a visual-only activation.
func (m *Metrics) AudioUnavailable() {
	if m == nil {
		return
	}

	m.audioUnavailable.Inc()
}

// EpisodeStarted is a no-op, activations are counted by AlarmActivated.
func (m *Metrics) EpisodeStarted(context.Context, detection.Episode) {}

// EpisodeEnded observes the duration of a closed episode.
func (m *Metrics) EpisodeEnded(_ context.Context, episode detection.Episode) {
	if m == nil || episode.Open() {
		return
	}

	m.episodeDuration.Observe(episode.Duration(episode.EndedAt).Seconds())
}

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and observes their duration under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
