package main

import (
	"os"

	"github.com/miladsoleymani/dlqmux/cmd/dlqmux/cmd"

	// Register broker drivers.
	_ "github.com/miladsoleymani/dlqmux/plugins/kafka"
	_ "github.com/miladsoleymani/dlqmux/plugins/nats"
	_ "github.com/miladsoleymani/dlqmux/plugins/rabbitmq"
)

func main() {
	if err := cmd.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
