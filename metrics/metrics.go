package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// EventsAdmittedTotal counts events accepted into a cache (main or
// peek) by element type. EventsDeliveredTotal counts pops the registry
// reported as consumed. EventsDroppedTotal counts illegal events
// rejected at admission; frames the StreamAdapter cannot decode are
// not counted.
var (
	EventsAdmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssedeliver_events_admitted_total",
		Help: "Events accepted into a CacheDeliverer buffer, by element type.",
	}, []string{"element_type"})

	EventsDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssedeliver_events_delivered_total",
		Help: "Events popped and reported consumed by the registry, by element type.",
	}, []string{"element_type"})

	EventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssedeliver_events_dropped_total",
		Help: "Events rejected at admission (illegal sessionLogId/elementType).",
	}, []string{"reason"})

	CacheDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ssedeliver_cache_depth",
		Help: "Current entry count in a CacheDeliverer buffer.",
	}, []string{"buffer"})

	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ssedeliver_connection_state",
		Help: "Current sse.ConnectionState as its int value.",
	})
)

func init() {
	prometheus.MustRegister(EventsAdmittedTotal, EventsDeliveredTotal, EventsDroppedTotal, CacheDepth, ConnectionState)
}

type CounterSmoother struct {
	lastValue float64
	smoothed  float64
	Alpha     float64
	isInit    bool
}

func (s *CounterSmoother) Update(currentTotal float64) float64 {
	if !s.isInit {
		s.lastValue = currentTotal
		s.isInit = true
		return 0
	}

	delta := currentTotal - s.lastValue
	if delta < 0 {
		delta = 0
	}

	s.smoothed = s.Alpha*delta + (1-s.Alpha)*s.smoothed
	s.lastValue = currentTotal

	return s.smoothed
}

func Gather() []*dto.MetricFamily {
	familys, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil
	}
	return familys
}
