package stream

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	sent      prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	retries   prometheus.Counter
	alarms    prometheus.Counter

	bufferUsage prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncstream", Subsystem: "streamer",
			Name: "commands_sent_total",
			Help: "Commands transmitted to the controller, including retries.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncstream", Subsystem: "streamer",
			Name: "commands_completed_total",
			Help: "Commands acknowledged by the controller.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncstream", Subsystem: "streamer",
			Name: "commands_failed_total",
			Help: "Commands that exhausted their retries.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncstream", Subsystem: "streamer",
			Name: "command_retries_total",
			Help: "Commands requeued after a controller error.",
		}),
		alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncstream", Subsystem: "streamer",
			Name: "alarms_total",
			Help: "Alarm responses received from the controller.",
		}),
		bufferUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cncstream", Subsystem: "streamer",
			Name: "buffer_occupied_bytes",
			Help: "Local estimate of bytes occupied in the controller receive buffer.",
		}),
	}
}

// Register attaches the streamer's metrics to a Prometheus registry.
// Metrics are collected whether or not they are registered, so tests can
// run multiple streamers without collisions.
func (s *Streamer) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		s.metrics.sent, s.metrics.completed, s.metrics.failed,
		s.metrics.retries, s.metrics.alarms, s.metrics.bufferUsage,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
