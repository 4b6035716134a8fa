package network

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
)

// DownloadParams ...
type DownloadParams struct {
	URL          string
	DownloadPath string
}

// Download fetches a finished asset from its published URL into
// DownloadPath.
func Download(ctx context.Context, params DownloadParams, logger log.Logger) error {
	if params.URL == "" {
		return fmt.Errorf("download URL is empty")
	}
	if params.DownloadPath == "" {
		return fmt.Errorf("download path is empty")
	}

	downloader := got.New()
	downloader.Client = retryhttp.NewClient(logger).StandardClient()

	if err := downloader.Do(got.NewDownload(ctx, params.URL, params.DownloadPath)); err != nil {
		return fmt.Errorf("download asset: %w", err)
	}
	return nil
}
