package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-assetupload/asset"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/spf13/cobra"
)

const defaultBaseURL = "https://api.twelvelabs.io/v1.3"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var input asset.UploadInput

	cmd := &cobra.Command{
		Use:          "asset-upload",
		Short:        "Upload a file to the asset service using resumable multipart uploads",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.NewLogger()
			logger.EnableDebugLog(input.Verbose)

			uploader := asset.NewUploader(env.NewRepository(), logger, pathutil.NewPathChecker(), nil, nil)
			url, err := uploader.Upload(ctx, input)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.FilePath, "file", "", "Path to the file to upload (required)")
	cmd.Flags().StringVar(&input.APIKey, "api-key", "", "API key for authentication (required)")
	cmd.Flags().StringVar(&input.Filename, "filename", "", "Filename to use for the asset (default: base name of --file)")
	cmd.Flags().StringVar(&input.AssetType, "type", asset.DefaultAssetType, "Asset type")
	cmd.Flags().StringVar(&input.APIBaseURL, "base-url", defaultBaseURL, "Base URL of the asset service API")
	cmd.Flags().IntVar(&input.BatchSize, "batch-size", 10, "Number of chunks to upload and report per batch")
	cmd.Flags().StringVar(&input.DownloadPath, "download-to", "", "Download the finished asset to this path")
	cmd.Flags().BoolVar(&input.Verbose, "verbose", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("api-key")

	return cmd
}
