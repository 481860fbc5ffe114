package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloudbuckets/internal/buckets"

	"github.com/spf13/cobra"
)

func newFileCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "file", Short: "List, upload, download and delete files"}

	var listOpts buckets.ListFilesOptions
	list := &cobra.Command{
		Use:   "list <bucket>",
		Short: "List one page of files; pass the printed next token as --offset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				out, err := p.ListFiles(ctx, args[0], &listOpts)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	list.Flags().StringVar(&listOpts.Folder, "folder", "", "only list files below this folder")
	list.Flags().BoolVar(&listOpts.Recursive, "recursive", false, "descend into sub-folders instead of grouping them")
	list.Flags().IntVar(&listOpts.Limit, "limit", 0, "maximum entries per page (0 for the provider default)")
	list.Flags().StringVar(&listOpts.Offset, "offset", "", "continuation token from a previous page")

	var putOpts buckets.PutFileOptions
	var access, expires string
	put := &cobra.Command{
		Use:   "put <bucket> <key> <source|->",
		Short: "Upload a local file, or stdin when source is -",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			putOpts.Access = buckets.Access(access)
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("parse --expires: %w", err)
				}
				putOpts.Expires = t
			}

			var body io.Reader = os.Stdin
			if args[2] != "-" {
				f, err := os.Open(args[2])
				if err != nil {
					return fmt.Errorf("open source: %w", err)
				}
				defer f.Close()
				body = f
			}
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.PutFile(ctx, args[0], args[1], body, &putOpts); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Key: args[1], Status: "uploaded"})
			})
		},
	}
	put.Flags().StringVar(&putOpts.ContentType, "content-type", "", "content type of the object")
	put.Flags().StringVar(&putOpts.ContentEncoding, "content-encoding", "", "content encoding of the object")
	put.Flags().StringVar(&putOpts.StorageClass, "storage-class", "", "storage class, e.g. STANDARD_IA")
	put.Flags().StringVar(&putOpts.Redirect, "redirect", "", "website redirect location")
	put.Flags().StringVar(&access, "access", "", "access level: private or public-read")
	put.Flags().StringVar(&expires, "expires", "", "expiration time (RFC3339)")

	var getOpts buckets.GetFileOptions
	var output string
	get := &cobra.Command{
		Use:   "get <bucket> <key>",
		Short: "Download a file to stdout or --output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				rc, err := p.GetFileStream(ctx, args[0], args[1], &getOpts)
				if err != nil {
					return err
				}
				defer rc.Close()
				return writeOutput(output, rc)
			})
		},
	}
	get.Flags().StringVarP(&output, "output", "o", "", "destination file (default stdout)")
	get.Flags().StringVar(&getOpts.VersionID, "version", "", "version id to download")

	del := &cobra.Command{
		Use:   "delete <bucket> <key>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				if err := p.DeleteFile(ctx, args[0], args[1]); err != nil {
					return err
				}
				return printJSON(statusOutput{Bucket: args[0], Key: args[1], Status: "deleted"})
			})
		},
	}

	stat := &cobra.Command{
		Use:   "stat <bucket> <key>",
		Short: "Show file metadata, or null when the file does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				md, err := p.GetFileMetadata(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(md)
			})
		},
	}

	var versionOpts buckets.ListOptions
	versions := &cobra.Command{
		Use:   "versions <bucket> <path>",
		Short: "List the versions of a file, or of every file below a path ending in /",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withProvider(cmd, func(ctx context.Context, p buckets.Provider) error {
				out, err := p.ListFileVersions(ctx, args[0], args[1], &versionOpts)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	versions.Flags().IntVar(&versionOpts.Limit, "limit", 0, "maximum versions per page (0 for the provider default)")
	versions.Flags().StringVar(&versionOpts.Offset, "offset", "", "continuation token from a previous page")

	cmd.AddCommand(list, put, get, del, stat, versions)
	return cmd
}

// writeOutput copies r to path, or to stdout when path is empty. A partial
// file is removed when the copy fails.
func writeOutput(path string, r io.Reader) error {
	if path == "" || path == "-" {
		_, err := io.Copy(os.Stdout, r)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
