// Command truecanvas is the operator CLI: it runs submissions in-process, watches proofs,
// confirms transactions and talks to a running ingestion gateway.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"truecanvas/config"
)

type options struct {
	configDir string
	gateway   string

	loaded *config.Config
}

func main() {
	logger := log.New(os.Stderr, "[CLI] ", log.LstdFlags|log.Lshortfile)
	if err := newRootCommand(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger *log.Logger) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "truecanvas",
		Short:         "Verify, mint and register artwork provenance",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "./config", "directory holding engine.defaults.yml, client_config.yml and networks.yml")
	root.PersistentFlags().StringVar(&opts.gateway, "gateway", "", "gRPC address of an ingestion gateway; submit and status go through it when set")

	root.AddCommand(
		newSubmitCommand(opts, logger),
		newStatusCommand(opts),
		newProofStatusCommand(opts, logger),
		newConfirmCommand(opts, logger),
		newNetworksCommand(opts),
	)
	return root
}
