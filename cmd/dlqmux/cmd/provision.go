package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/dlqmux/core"
)

func newProvisionCmd(load func() (*runtime, error)) *cobra.Command {
	var (
		topic, deadLetter, connection string
		defaults                      = core.DefaultTopicDefaults
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a topic and its dead-letter topic if missing",
		Long: `Create the work topic and its dead-letter topic on a connection.
Topics that already exist are left untouched.

Examples:
  dlqmux provision --topic orders --dead-letter-topic orders.dlq
  dlqmux provision --topic orders --dead-letter-topic orders.dlq --connection eu --partitions 6`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := core.Provision(cmd.Context(), rt.pool, connection, topic, deadLetter, defaults); err != nil {
				return err
			}
			rt.log.Info("topics provisioned",
				zap.String("topic", topic),
				zap.String("dead_letter_topic", deadLetter),
				zap.String("connection", connection),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s and %s on %s\n", topic, deadLetter, connection)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "work topic")
	cmd.Flags().StringVar(&deadLetter, "dead-letter-topic", "", "dead-letter topic")
	cmd.Flags().StringVar(&connection, "connection", core.DefaultConnection, "named broker connection")
	cmd.Flags().IntVar(&defaults.Partitions, "partitions", defaults.Partitions, "partitions for created topics")
	cmd.Flags().IntVar(&defaults.ReplicationFactor, "replication", defaults.ReplicationFactor, "replication factor for created topics")
	requireFlags(cmd, "topic", "dead-letter-topic")
	return cmd
}
