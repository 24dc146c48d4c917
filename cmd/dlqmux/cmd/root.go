package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/config"
	"github.com/miladsoleymani/dlqmux/internal/logging"
)

// NewRoot builds the dlqmux command tree.
func NewRoot() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:   "dlqmux",
		Short: "Reliable topic consumer with dead-letter routing",
		Long: `dlqmux consumes a topic as part of a consumer group, hands every message
to its handlers and routes failures to a dead-letter topic before committing.

Connections are configured through DLQMUX_* environment variables or a .env file:
  DLQMUX_CONNECTIONS=default
  DLQMUX_DEFAULT_DRIVER=kafka
  DLQMUX_DEFAULT_BROKERS=localhost:9092

Use "dlqmux [command] --help" for more information about a command.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env)")

	load := func() (*runtime, error) { return newRuntime(envFiles) }
	root.AddCommand(newConsumeCmd(load), newProvisionCmd(load))
	return root
}

// runtime is the process state shared by commands.
type runtime struct {
	settings *config.Settings
	log      *zap.Logger
	pool     *broker.Pool
}

func newRuntime(envFiles []string) (*runtime, error) {
	settings, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return nil, err
	}
	return &runtime{
		settings: settings,
		log:      log,
		pool:     broker.NewPool(settings.Brokers()),
	}, nil
}

func (r *runtime) close() {
	if err := r.pool.Close(); err != nil {
		r.log.Warn("close broker pool", zap.Error(err))
	}
	_ = r.log.Sync()
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("mark flag %q required: %v", name, err))
		}
	}
}
