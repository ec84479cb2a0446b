package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		streamsActive,
		streamEvents,
	)
}

var (
	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streams_active",
			Help: "Currently connected status-stream clients.",
		},
	)

	streamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_total",
			Help: "Events written to status streams, per event name.",
		},
		[]string{"event"},
	)
)

// StreamOpened marks one new stream client.
func StreamOpened() { streamsActive.Inc() }

// StreamClosed marks one disconnected stream client.
func StreamClosed() { streamsActive.Dec() }

// StreamEvent counts one emitted stream event.
func StreamEvent(name string) { streamEvents.WithLabelValues(name).Inc() }
