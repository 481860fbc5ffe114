package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"cloudbuckets/internal/buckets"

	"github.com/spf13/cobra"
)

type statusOutput struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key,omitempty"`
	Status string `json:"status"`
}

func newBucketCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "bucket", Short: "List, create and delete buckets"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				out, err := p.ListBuckets(ctx, nil)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}

	var createOpts buckets.CreateBucketOptions
	var access string
	create := &cobra.Command{
		Use:   "create <bucket>",
		Short: "Create a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			createOpts.Access = buckets.Access(access)
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.CreateBucket(ctx, args[0], &createOpts); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Status: "created"})
			})
		},
	}
	create.Flags().StringVar(&access, "access", "", "access level: private or public-read")
	create.Flags().StringVar(&createOpts.Location, "location", "", "bucket region; defaults to the provider region")

	del := &cobra.Command{
		Use:   "delete <bucket>",
		Short: "Delete an empty bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.DeleteBucket(ctx, args[0]); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Status: "deleted"})
			})
		},
	}

	exists := &cobra.Command{
		Use:   "exists <bucket>",
		Short: "Report whether a bucket exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				ok, err := p.BucketExists(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(struct {
					Bucket string `json:"bucket"`
					Exists bool   `json:"exists"`
				}{Bucket: args[0], Exists: ok})
			})
		},
	}

	cmd.AddCommand(list, create, del, exists)
	return cmd
}

func newWebsiteCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "website", Short: "Manage static website hosting"}

	get := &cobra.Command{
		Use:   "get <bucket>",
		Short: "Show the website configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				cfg, err := p.GetWebsiteConfiguration(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}

	var site buckets.BucketWebsiteConfiguration
	set := &cobra.Command{
		Use:   "set <bucket>",
		Short: "Serve index/error pages or redirect every request to another host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := site.Validate(); err != nil {
				return err
			}
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				cfg, err := p.SetWebsiteConfiguration(ctx, args[0], site)
				if err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
	set.Flags().StringVar(&site.IndexPage, "index", "", "index document suffix, e.g. index.html")
	set.Flags().StringVar(&site.ErrorPage, "error", "", "error document key")
	set.Flags().StringVar(&site.RedirectHostName, "redirect-host", "", "host to redirect all requests to")
	set.Flags().StringVar(&site.RedirectProtocol, "redirect-protocol", "", "protocol for redirects (http or https)")

	domain := &cobra.Command{
		Use:   "domain <bucket>",
		Short: "Print the website endpoint host of a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				host, err := p.GetWebsiteDomain(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(struct {
					Bucket string `json:"bucket"`
					Domain string `json:"domain"`
				}{Bucket: args[0], Domain: host})
			})
		},
	}

	cmd.AddCommand(get, set, domain)
	return cmd
}

func newPolicyCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Manage bucket access policies"}

	get := &cobra.Command{
		Use:   "get <bucket>",
		Short: "Print the bucket policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				policy, err := p.GetPolicy(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(policy)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <bucket> <policy.json|->",
		Short: "Replace the bucket policy with a JSON document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := readPolicy(args[1])
			if err != nil {
				return err
			}
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.SetPolicy(ctx, args[0], policy); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Status: "policy updated"})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <bucket>",
		Short: "Remove the bucket policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.DeletePolicy(ctx, args[0]); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Status: "policy deleted"})
			})
		},
	}

	cmd.AddCommand(get, set, del)
	return cmd
}

// readPolicy decodes a policy document from path, or stdin when path is "-".
func readPolicy(path string) (buckets.Policy, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open policy: %w", err)
		}
		defer f.Close()
		r = f
	}
	var policy buckets.Policy
	if err := json.NewDecoder(r).Decode(&policy); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return policy, nil
}

func newVersioningCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "versioning", Short: "Manage object versioning"}

	get := &cobra.Command{
		Use:   "get <bucket>",
		Short: "Report whether versioning is enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				on, err := p.GetVersioning(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(struct {
					Bucket  string `json:"bucket"`
					Enabled bool   `json:"enabled"`
				}{Bucket: args[0], Enabled: on})
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <bucket> on|off",
		Short: "Enable or suspend versioning",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "enabled", "true":
				enabled = true
			case "off", "suspended", "false":
			default:
				return fmt.Errorf("versioning state must be on or off, got %q", args[1])
			}
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.SetVersioning(ctx, args[0], enabled); err != nil {
					return err
				}
				status := "versioning suspended"
				if enabled {
					status = "versioning enabled"
				}
				return printJSON(statusOutput{Bucket: args[0], Status: status})
			})
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func newEncryptionCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "encryption", Short: "Manage default server-side encryption"}

	get := &cobra.Command{
		Use:   "get <bucket>",
		Short: "Show the default encryption, or null when none is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				settings, err := p.GetEncryption(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(settings)
			})
		},
	}

	var encOpts buckets.SetEncryptionOptions
	var noBucketKey bool
	set := &cobra.Command{
		Use:   "set <bucket>",
		Short: "Enable default encryption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noBucketKey {
				encOpts.ProviderOptions = map[string]any{buckets.ProviderOptionDisableBucketKey: true}
			}
			if _, err := buckets.ResolveEncryption(&encOpts); err != nil {
				return err
			}
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.SetEncryption(ctx, args[0], true, &encOpts); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Status: "encryption enabled"})
			})
		},
	}
	set.Flags().StringVar(&encOpts.Algorithm, "algorithm", buckets.AlgorithmAES256, "AES256 or aws:kms")
	set.Flags().StringVar(&encOpts.KeyID, "key-id", "", "KMS key id or ARN")
	set.Flags().BoolVar(&noBucketKey, "disable-bucket-key", false, "do not enable the KMS bucket key")

	disable := &cobra.Command{
		Use:   "disable <bucket>",
		Short: "Remove the default encryption configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.SetEncryption(ctx, args[0], false, nil); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Status: "encryption disabled"})
			})
		},
	}

	cmd.AddCommand(get, set, disable)
	return cmd
}
