package asset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-assetupload/asset/chunker"
	"github.com/bitrise-io/go-assetupload/asset/network"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
)

// DefaultAssetType is used when the caller does not name the asset's type.
const DefaultAssetType = "video"

// UploadInput is the information that comes from the CLI driver or an
// embedding application.
type UploadInput struct {
	FilePath string
	// Filename is the name the asset is created under.
	// Defaults to the base name of FilePath.
	Filename string
	// AssetType defaults to DefaultAssetType.
	AssetType string
	// APIBaseURL falls back to the ASSET_API_BASE_URL env var.
	APIBaseURL string
	// APIKey falls back to the ASSET_API_KEY env var.
	APIKey    string
	BatchSize int
	Verbose   bool
	// DownloadPath, when set, downloads the finished asset to this path.
	DownloadPath string
}

// Uploader ...
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (string, error)
}

type uploadConfig struct {
	FilePath     string
	Filename     string
	AssetType    string
	APIBaseURL   string
	APIKey       string
	BatchSize    int
	DownloadPath string
}

type uploader struct {
	envRepo     env.Repository
	logger      log.Logger
	pathChecker pathutil.PathChecker
	client      network.Uploader
	downloader  network.Downloader
}

// NewUploader creates a new asset uploader instance. `client` and
// `downloader` can be nil, unless you want to provide custom
// implementations.
func NewUploader(
	envRepo env.Repository,
	logger log.Logger,
	pathChecker pathutil.PathChecker,
	client network.Uploader,
	downloader network.Downloader,
) *uploader {
	var clientImpl network.Uploader = client
	if client == nil {
		clientImpl = network.DefaultUploader{}
	}
	var downloaderImpl network.Downloader = downloader
	if downloader == nil {
		downloaderImpl = network.DefaultDownloader{}
	}
	return &uploader{
		envRepo:     envRepo,
		logger:      logger,
		pathChecker: pathChecker,
		client:      clientImpl,
		downloader:  downloaderImpl,
	}
}

// Upload runs the multipart upload flow for the input file and returns the
// final asset URL.
func (u *uploader) Upload(ctx context.Context, input UploadInput) (string, error) {
	config, err := u.createConfig(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse inputs: %w", err)
	}

	tracker := newUploadTracker(u.envRepo, u.logger)
	defer tracker.wait()

	fileInfo, err := os.Stat(config.FilePath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}

	u.logger.Println()
	u.logger.Infof("Uploading %s (%s)...", config.Filename,
		units.HumanSizeWithPrecision(float64(fileInfo.Size()), 3))
	uploadStartTime := time.Now()

	url, err := u.client.Upload(ctx, network.UploadParams{
		APIBaseURL: config.APIBaseURL,
		APIKey:     config.APIKey,
		FilePath:   config.FilePath,
		Filename:   config.Filename,
		AssetType:  config.AssetType,
		BatchSize:  config.BatchSize,
	}, u.logger)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	uploadTime := time.Since(uploadStartTime).Round(time.Second)
	u.logger.Donef("Uploaded asset in %s", uploadTime)
	tracker.logAssetUploaded(uploadTime, fileInfo.Size(), config.AssetType)

	if config.DownloadPath != "" {
		u.logger.Println()
		u.logger.Infof("Downloading asset...")
		err := u.downloader.Download(ctx, network.DownloadParams{
			URL:          url,
			DownloadPath: config.DownloadPath,
		}, u.logger)
		if err != nil {
			return "", fmt.Errorf("download failed: %w", err)
		}
		u.logger.Donef("Downloaded asset to %s", config.DownloadPath)
	}

	return url, nil
}

func (u *uploader) createConfig(input UploadInput) (uploadConfig, error) {
	if input.FilePath == "" {
		return uploadConfig{}, fmt.Errorf("file path is empty")
	}
	exists, err := u.pathChecker.IsPathExists(input.FilePath)
	if err != nil {
		return uploadConfig{}, err
	}
	if !exists {
		return uploadConfig{}, fmt.Errorf("%w: %s", chunker.ErrFileNotFound, input.FilePath)
	}

	apiBaseURL := input.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = u.envRepo.Get("ASSET_API_BASE_URL")
	}
	if apiBaseURL == "" {
		return uploadConfig{}, fmt.Errorf("API base URL is not provided and 'ASSET_API_BASE_URL' is not defined")
	}
	apiKey := input.APIKey
	if apiKey == "" {
		apiKey = u.envRepo.Get("ASSET_API_KEY")
	}
	if apiKey == "" {
		return uploadConfig{}, fmt.Errorf("API key is not provided and 'ASSET_API_KEY' is not defined")
	}

	filename := input.Filename
	if filename == "" {
		filename = filepath.Base(input.FilePath)
	}
	assetType := input.AssetType
	if assetType == "" {
		assetType = DefaultAssetType
	}

	return uploadConfig{
		FilePath:     input.FilePath,
		Filename:     filename,
		AssetType:    assetType,
		APIBaseURL:   apiBaseURL,
		APIKey:       apiKey,
		BatchSize:    input.BatchSize,
		DownloadPath: input.DownloadPath,
	}, nil
}
