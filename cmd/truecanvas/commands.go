package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	blockchain "truecanvas/blockchain/client"
	"truecanvas/blockchain/confirm"
	"truecanvas/blockchain/networks"
	"truecanvas/blockchain/types"
	"truecanvas/config"
	grpchandler "truecanvas/ingestion/service/grpc"
	"truecanvas/processing/orchestrator"
	"truecanvas/verification"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// dataURL reads a file and encodes it as a base64 data URL
func dataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image '%s': %w", path, err)
	}
	return "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *options) load() (*config.Config, error) {
	if o.loaded == nil {
		cfg, err := config.LoadConfig(o.configDir)
		if err != nil {
			return nil, err
		}
		o.loaded = cfg
	}
	return o.loaded, nil
}

func (o *options) loadEngine() (*config.EngineConfig, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine.defaults.yml not found in '%s'", o.configDir)
	}
	return cfg.Engine, nil
}

func (o *options) loadChain(logger *log.Logger) (blockchain.BlockchainClient, *config.BlockchainConfig, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	path := filepath.Join(o.configDir, "client_config.yml")
	if cfg.Blockchain == nil {
		if cfg.Engine == nil {
			return nil, nil, fmt.Errorf("client_config.yml not found in '%s'", o.configDir)
		}
		path = cfg.Engine.BlockchainClientConfigPath
	}
	return blockchain.NewBlockchainClientFromFile(path, logger)
}

// loadNetworks prefers an explicit file, then the directory's networks.yml, then the built-in table
func (o *options) loadNetworks(path string) (*networks.Registry, error) {
	if path != "" {
		return networks.Load(path)
	}
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if cfg.Networks != nil {
		return networks.FromConfig(cfg.Networks)
	}
	return networks.Default(), nil
}

func (o *options) dialGateway() (*grpchandler.Client, error) {
	return grpchandler.Dial(o.gateway, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func newSubmitCommand(opts *options, logger *log.Logger) *cobra.Command {
	var imagePath, logsPath string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit artwork and its provenance logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			image, err := dataURL(imagePath)
			if err != nil {
				return err
			}
			logs, err := os.ReadFile(logsPath)
			if err != nil {
				return fmt.Errorf("failed to read logs '%s': %w", logsPath, err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if opts.gateway != "" {
				client, err := opts.dialGateway()
				if err != nil {
					return err
				}
				defer client.Close()
				resp, err := client.Submit(ctx, &grpchandler.SubmitRequest{Image: image, Logs: string(logs)})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return runInProcess(ctx, opts, logger, cmd.OutOrStdout(), image, string(logs))
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "artwork image file")
	cmd.Flags().StringVar(&logsPath, "logs", "", "provenance log file")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("logs")
	return cmd
}

// runInProcess drives the orchestrator locally and prints every state change
func runInProcess(ctx context.Context, opts *options, logger *log.Logger, out io.Writer, image, logs string) error {
	engineCfg, err := opts.loadEngine()
	if err != nil {
		return err
	}
	chain, bcCfg, err := opts.loadChain(logger)
	if err != nil {
		return err
	}
	defer chain.Close()

	registry, err := opts.loadNetworks(bcCfg.NetworksPath)
	if err != nil {
		return err
	}
	policy, err := orchestrator.NewPolicy(registry, bcCfg.EventTopics)
	if err != nil {
		return err
	}
	deps := orchestrator.DependenciesFromConfig(engineCfg.Verifier, bcCfg.Confirmation, chain, logger)

	runner := orchestrator.NewRunner(policy, deps, logger).WithObserver(func(s orchestrator.Snapshot) {
		fmt.Fprintf(out, "%-16s %s\n", s.State, describe(s))
	})
	final, err := runner.Run(ctx, image, logs)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]interface{}{
		"state":        final.State,
		"mint":         final.Mint,
		"registration": final.Registration,
		"links":        final.Links,
		"note":         final.Note,
	})
}

func describe(s orchestrator.Snapshot) string {
	switch {
	case s.Err != nil:
		return s.Err.Error()
	case s.RegisterTx != nil && s.Registration == nil:
		return s.RegisterTx.Hash.Hex()
	case s.MintTx != nil && s.Mint == nil:
		return s.MintTx.Hash.Hex()
	case s.Job != nil && s.Artifact == nil:
		return "image " + s.Job.ImageID
	case s.Note != "":
		return s.Note
	}
	return ""
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status REQUEST_ID",
		Short: "Show a submission tracked by the ingestion gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.gateway == "" {
				return fmt.Errorf("--gateway is required")
			}
			client, err := opts.dialGateway()
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := signalContext()
			defer cancel()
			view, err := client.GetSubmission(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newProofStatusCommand(opts *options, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "proof-status IMAGE_ID",
		Short: "Poll the verification service until the proof resolves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engineCfg, err := opts.loadEngine()
			if err != nil {
				return err
			}
			vc := verification.NewClientFromConfig(engineCfg.Verifier, logger)
			tracker := verification.NewTracker(vc, verification.TrackerOptionsFromConfig(engineCfg.Verifier), logger)

			ctx, cancel := signalContext()
			defer cancel()
			var last verification.ProofStatus
			for st := range tracker.Track(ctx, args[0]) {
				last = st
				if st.Kind == verification.Pending {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", st.Kind)
				}
			}
			if !last.Terminal() {
				return ctx.Err()
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"status":   last.Kind.String(),
				"artifact": last.Artifact,
				"reason":   last.Reason,
			})
		},
	}
}

func newConfirmCommand(opts *options, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm TX_HASH",
		Short: "Wait for a transaction receipt on the configured chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, bcCfg, err := opts.loadChain(logger)
			if err != nil {
				return err
			}
			defer chain.Close()

			ctx, cancel := signalContext()
			defer cancel()
			chainID, err := chain.ChainID(ctx)
			if err != nil {
				return err
			}
			engine := confirm.FromConfig(bcCfg.Confirmation, logger)
			receipt, err := engine.Confirm(ctx, chain, types.PendingTransaction{Hash: common.HexToHash(args[0]), ChainID: chainID})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
}

func newNetworksCommand(opts *options) *cobra.Command {
	var networksPath string
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List supported chains and the registry chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := opts.loadNetworks(networksPath)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"registry_chain_id": reg.RegistryChainID(),
				"chains":            reg.All(),
			})
		},
	}
	cmd.Flags().StringVar(&networksPath, "networks", "", "networks file; networks.yml in the config directory, then the built-in table, when empty")
	return cmd
}
