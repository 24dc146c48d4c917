package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/dlqmux"
	"github.com/miladsoleymani/dlqmux/core"
	"github.com/miladsoleymani/dlqmux/core/middleware"
	"github.com/miladsoleymani/dlqmux/notify"
)

func newConsumeCmd(load func() (*runtime, error)) *cobra.Command {
	var (
		binding     core.Binding
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume a topic and print every message as a JSON line",
		Long: `Join a consumer group on a topic and print each message to stdout as JSON.
A message that cannot be written is sent to the dead-letter topic.
Both topics are created first if they do not exist.

Examples:
  dlqmux consume --topic orders --dead-letter-topic orders.dlq --group audit
  dlqmux consume --topic orders --dead-letter-topic orders.dlq --group audit --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return consume(ctx, rt, binding, metricsAddr, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&binding.Topic, "topic", "", "work topic")
	cmd.Flags().StringVar(&binding.DeadLetterTopic, "dead-letter-topic", "", "dead-letter topic")
	cmd.Flags().StringVar(&binding.GroupID, "group", "", "consumer group id")
	cmd.Flags().StringVar(&binding.Connection, "connection", core.DefaultConnection, "named broker connection")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	requireFlags(cmd, "topic", "dead-letter-topic", "group")
	return cmd
}

func consume(ctx context.Context, rt *runtime, binding core.Binding, metricsAddr string, out io.Writer) error {
	opts := []dlqmux.Option{
		dlqmux.WithLogger(rt.log),
		dlqmux.WithRequeue(rt.settings.RequeueEnabled),
	}
	if dsn := rt.settings.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
		opts = append(opts, dlqmux.WithNotifier(notify.Sentry(sentry.CurrentHub())))
	}

	c := dlqmux.New(rt.pool, opts...)
	c.Use(middleware.Logging(rt.log))

	if metricsAddr != "" {
		srv, err := serveMetrics(metricsAddr, c, rt.log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	c.OnMessageReceived(printer(out))

	if err := c.Initialize(ctx, binding); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.Done():
	}
	if err := c.Dispose(); err != nil {
		rt.log.Warn("dispose consumer", zap.Error(err))
	}
	return c.Err()
}

func serveMetrics(addr string, c *dlqmux.Consumer, log *zap.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := middleware.NewPrometheusCollector(reg, "dlqmux")
	if err != nil {
		return nil, err
	}
	c.Use(middleware.Metrics(collector))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	return srv, nil
}

type record struct {
	Topic   string            `json:"topic"`
	Key     string            `json:"key,omitempty"`
	Value   string            `json:"value"`
	Headers map[string]string `json:"headers,omitempty"`
}

// printer writes each message as one JSON line. A write error fails the
// handler, which routes the message to the dead-letter topic.
func printer(out io.Writer) core.Handler {
	enc := json.NewEncoder(out)
	return func(_ context.Context, msg core.Message) error {
		return enc.Encode(record{
			Topic:   msg.Topic(),
			Key:     string(msg.Key()),
			Value:   string(msg.Value()),
			Headers: msg.Headers(),
		})
	}
}
