package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/ira-ai-automation/agentpair/agent"
	"github.com/ira-ai-automation/agentpair/config"
	"github.com/ira-ai-automation/agentpair/token"
)

var version = "dev"

type runOptions struct {
	configPath string
	envFile    string
	duration   time.Duration
	noToken    bool
	trace      bool
	agents     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:          "agentpair",
		Short:        "Run a pair of message-passing agents linked by a bridge",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "dotenv file with token settings")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured agents until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgents(cmd.Context(), opts)
		},
	}
	runCmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&opts.noToken, "no-token", false, "disable the token balance and transfer capabilities")
	runCmd.Flags().BoolVar(&opts.trace, "trace", false, "write trace spans to stderr")
	runCmd.Flags().StringVar(&opts.agents, "agents", "", "run only the agents whose name matches this regular expression")

	balanceCmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the token balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBalance(cmd.Context(), opts, args[0])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(runCmd, balanceCmd, versionCmd)
	return rootCmd
}

func runAgents(ctx context.Context, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Read(opts.configPath, opts.envFile)
	if err != nil {
		return err
	}
	if opts.noToken {
		cfg.DisableToken()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	var tp trace.TracerProvider
	if opts.trace {
		sdkTP, err := newTracerProvider(os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := sdkTP.Shutdown(context.Background()); err != nil {
				logger.Warn("Trace flush failed", agent.Field{Key: "error", Value: err})
			}
		}()
		tp = sdkTP
	}

	var service token.Service
	if cfg.Token.Enabled && cfg.UsesToken() {
		client, err := dialToken(ctx, cfg, logger)
		if err != nil {
			logger.Error("Token service unavailable", agent.Field{Key: "error", Value: err})
			return err
		}
		service = client
	}

	telemetry, err := agent.NewTelemetry(nil, tp)
	if err != nil {
		return err
	}

	rt, caps, err := buildRuntime(cfg, service, os.Stdout, logger, telemetry, opts.agents)
	if err != nil {
		return err
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	logger.Info("Agents configured", agent.Field{Key: "agents", Value: len(rt.Agents())})
	runErr := rt.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", agent.Field{Key: "error", Value: err})
	}
	if caps.transfer != nil {
		caps.transfer.Wait()
	}

	return runErr
}

func printBalance(ctx context.Context, opts *runOptions, address string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := token.ValidateAddress("address", address); err != nil {
		return err
	}

	cfg, err := config.Read(opts.configPath, opts.envFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	client, err := dialToken(ctx, cfg, logger)
	if err != nil {
		return err
	}
	balance, err := client.Balance(ctx, address)
	if err != nil {
		return err
	}
	decimals, err := client.Decimals(ctx)
	if err != nil {
		return err
	}

	fmt.Println(token.FormatAmount(balance, decimals))
	return nil
}
