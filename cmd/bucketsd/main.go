package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloudbuckets/internal/config"
	"cloudbuckets/internal/gateway"
	"cloudbuckets/internal/logging"
	"cloudbuckets/internal/providers"
	"cloudbuckets/internal/state"

	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	provider    string
	listen      string
	allowRemote bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "state path error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bucketsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	defaultConfigPath, err := state.ConfigPath()
	if err != nil {
		return nil, err
	}
	opts := &options{configPath: defaultConfigPath}

	cmd := &cobra.Command{
		Use:           "bucketsd",
		Short:         "Serve the configured bucket provider over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "provider id (aws, minio, local); overrides the config file")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "listen address; overrides gateway.listen")
	cmd.Flags().BoolVar(&opts.allowRemote, "allow-remote", false, "permit non-loopback listen addresses")
	return cmd, nil
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if opts.provider != "" {
		cfg.Provider = opts.provider
		cfg.ApplyEnv(os.Getenv)
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	if opts.listen != "" {
		cfg.Gateway.Listen = opts.listen
	}
	if cmd.Flags().Changed("allow-remote") {
		cfg.Gateway.AllowRemote = opts.allowRemote
	}

	addr, err := gateway.ValidateListenAddress(cfg.Gateway.Listen, cfg.Gateway.AllowRemote)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	localRoot, err := state.LocalRootDir()
	if err != nil {
		return err
	}
	p, err := providers.Resolve(ctx, cfg.Provider, cfg.ProviderOptions(localRoot, log))
	if err != nil {
		return fmt.Errorf("open provider: %w", err)
	}
	defer p.Close()

	if cfg.Gateway.AllowRemote && cfg.Gateway.Token == "" {
		log.Warn().Str("addr", addr).Msg("remote gateway access is enabled without a token; write routes are open")
	}

	srv := gateway.New(p, log)
	srv.SetAddress(addr)
	srv.SetAuthToken(cfg.Gateway.Token)
	return srv.Run(ctx)
}
