package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloudbuckets/internal/buckets"
	"cloudbuckets/internal/config"
	"cloudbuckets/internal/logging"
	"cloudbuckets/internal/providers"
	"cloudbuckets/internal/state"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	provider   string
	region     string
	logLevel   string
}

// Run executes the buckets command line with args, excluding the program
// name.
func Run(args []string) error {
	return RunContext(context.Background(), args)
}

func RunContext(ctx context.Context, args []string) error {
	root, err := newRootCommand()
	if err != nil {
		return err
	}
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, error) {
	configPath, err := state.ConfigPath()
	if err != nil {
		return nil, err
	}
	g := &globalOptions{configPath: configPath}

	root := &cobra.Command{
		Use:           "buckets",
		Short:         "Manage buckets and files on AWS S3, MinIO or a local directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageError()
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", configPath, "path to config file")
	root.PersistentFlags().StringVar(&g.provider, "provider", "", "provider id (aws, minio, local); overrides the config file")
	root.PersistentFlags().StringVar(&g.region, "region", "", "default region; overrides the config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newBucketCommand(g),
		newWebsiteCommand(g),
		newPolicyCommand(g),
		newVersioningCommand(g),
		newEncryptionCommand(g),
		newFileCommand(g),
	)
	return root, nil
}

func usageError() error {
	return errors.New("usage: buckets [--config path] [--provider id] bucket|website|policy|versioning|encryption|file ...")
}

// loadConfig reads the config file and applies the global flag overrides.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.provider == "" && g.region == "" && g.logLevel == "" {
		return cfg, nil
	}

	if g.provider != "" {
		cfg.Provider = g.provider
		cfg.ApplyEnv(os.Getenv)
	}
	if region := strings.TrimSpace(g.region); region != "" {
		cfg.AWS.Region = region
		cfg.MinIO.Region = region
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withProvider opens the configured provider for the duration of fn.
func (g *globalOptions) withProvider(cmd *cobra.Command, fn func(ctx context.Context, p buckets.Provider) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	localRoot, err := state.LocalRootDir()
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	ctx := cmd.Context()
	p, err := providers.Resolve(ctx, cfg.Provider, cfg.ProviderOptions(localRoot, log))
	if err != nil {
		return fmt.Errorf("open provider: %w", err)
	}
	defer p.Close()
	return fn(ctx, p)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
