package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gomoku"

const (
	ResultSuccess = "success"
	ResultTimeout = "timeout"
	ResultError   = "error"

	TargetWorker = "worker"
	TargetLocal  = "local"
)

// Metrics - collectors shared by the coordinator components. A nil *Metrics records nothing.
type Metrics struct {
	liveRooms        prometheus.Gauge
	loadLevel        prometheus.Gauge
	systemLoad       prometheus.Gauge
	workersAvailable prometheus.Gauge
	workerRequests   *prometheus.CounterVec
	workerLatency    *prometheus.HistogramVec
	dispatch         *prometheus.CounterVec
	gamesEnded       *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) *Metrics {
	that := &Metrics{
		liveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_rooms",
			Help:      "Rooms counted by the dispatch policy.",
		}),
		loadLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_percent",
			Help:      "Combined load figure used for dispatch decisions.",
		}),
		systemLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_load_percent",
			Help:      "Last sampled host CPU utilisation.",
		}),
		workersAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_available",
			Help:      "Connected and healthy worker nodes.",
		}),
		workerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_requests_total",
			Help:      "Requests sent to workers by type and result.",
		}, []string{"type", "result"}),
		workerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_request_duration_seconds",
			Help:      "Round trip time of worker requests.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"type"}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Where each operation was computed.",
		}, []string{"operation", "target"}),
		gamesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Finished games by reason.",
		}, []string{"reason"}),
	}

	registerer.MustRegister(
		that.liveRooms,
		that.loadLevel,
		that.systemLoad,
		that.workersAvailable,
		that.workerRequests,
		that.workerLatency,
		that.dispatch,
		that.gamesEnded,
	)

	return that
}

func (that *Metrics) SetLiveRooms(count int) {
	if that == nil {
		return
	}

	that.liveRooms.Set(float64(count))
}

func (that *Metrics) SetLoad(system, level int) {
	if that == nil {
		return
	}

	that.systemLoad.Set(float64(system))
	that.loadLevel.Set(float64(level))
}

func (that *Metrics) SetWorkersAvailable(count int) {
	if that == nil {
		return
	}

	that.workersAvailable.Set(float64(count))
}

func (that *Metrics) ObserveWorkerRequest(requestType, result string, elapsed time.Duration) {
	if that == nil {
		return
	}

	that.workerRequests.WithLabelValues(requestType, result).Inc()
	that.workerLatency.WithLabelValues(requestType).Observe(elapsed.Seconds())
}

func (that *Metrics) ObserveDispatch(operation, target string) {
	if that == nil {
		return
	}

	that.dispatch.WithLabelValues(operation, target).Inc()
}

func (that *Metrics) ObserveGameEnded(reason string) {
	if that == nil {
		return
	}

	that.gamesEnded.WithLabelValues(reason).Inc()
}
