package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miladsoleymani/dlqmux/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// MessageProcessed records that a handler processed a message.
	// topic is the message's topic, duration is processing time,
	// and err is nil on success.
	MessageProcessed(topic string, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing metrics to the given collector.
func Metrics(collector MetricsCollector) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, msg core.Message) error {
			start := time.Now()
			err := next(ctx, msg)
			collector.MessageProcessed(msg.Topic(), time.Since(start), err)
			return err
		}
	}
}

// PrometheusCollector implements MetricsCollector with a handler duration
// histogram and a result counter, both labelled by topic.
type PrometheusCollector struct {
	duration *prometheus.HistogramVec
	messages *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates and registers the collector's metrics.
// reg defaults to prometheus.DefaultRegisterer and namespace to "dlqmux".
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "dlqmux"
	}

	c := &PrometheusCollector{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent in message handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_messages_total",
			Help:      "Messages processed by handlers, by result.",
		}, []string{"topic", "result"}),
	}
	for _, col := range []prometheus.Collector{c.duration, c.messages} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) MessageProcessed(topic string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.duration.WithLabelValues(topic).Observe(duration.Seconds())
	c.messages.WithLabelValues(topic, result).Inc()
}
