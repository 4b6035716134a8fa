package network

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bitrise-io/go-assetupload/asset/chunker"
	"github.com/bitrise-io/go-assetupload/asset/network/chunkuploader"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultBatchSize      = 10
	defaultURLPageSize    = 10
	defaultMaxConcurrency = 5
)

// UploadParams ...
type UploadParams struct {
	APIBaseURL string
	APIKey     string
	FilePath   string
	// Filename is the name the asset is created under. Defaults to the base
	// name of FilePath.
	Filename  string
	AssetType string
	// BatchSize is the number of chunks uploaded and reported together.
	// Default: 10
	BatchSize int
	// URLPageSize is the page size used when fetching additional presigned
	// URLs. Default: 10
	URLPageSize int
	// MaxConcurrency caps parallel chunk uploads within a batch. Default: 5
	MaxConcurrency int
	// RetryMax is the number of automatic retries for asset service calls.
	// The upload flow itself never retries, so this defaults to 0; callers
	// that want transport-level retries opt in explicitly.
	RetryMax int
	// StatusPollAttempts is the number of status checks performed when the
	// final completion report did not carry the asset URL. Default: 1
	StatusPollAttempts int
	// StatusPollInterval is the wait between status checks.
	StatusPollInterval time.Duration
}

// Upload drives a multipart upload session end to end: it negotiates the
// session, splits the file with the server-assigned chunk size, uploads the
// chunks to presigned URLs in batches, reports the proofs, and returns the
// final asset URL. The chunk scratch directory is removed on every exit
// path.
func Upload(ctx context.Context, params UploadParams, logger log.Logger) (string, error) {
	if params.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL is empty")
	}
	if params.APIKey == "" {
		return "", fmt.Errorf("API key is empty")
	}
	if params.FilePath == "" {
		return "", fmt.Errorf("file path is empty")
	}
	params = withDefaults(params)

	info, err := os.Stat(params.FilePath)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", chunker.ErrFileNotFound, params.FilePath)
	}
	logger.Printf("File size: %s", units.HumanSizeWithPrecision(float64(info.Size()), 3))

	client := newAPIClient(newRetryableClient(params.RetryMax, logger), params.APIBaseURL, params.APIKey, logger)

	logger.Infof("Creating upload session for %s...", params.Filename)
	session, err := client.createUpload(ctx, createUploadRequest{
		Filename:  params.Filename,
		AssetType: params.AssetType,
		TotalSize: info.Size(),
	})
	if err != nil {
		return "", err
	}
	logger.Debugf("Upload ID: %s", session.UploadID)
	logger.Debugf("Asset ID: %s", session.AssetID)
	logger.Debugf("Total chunks: %d", session.TotalChunks)
	logger.Debugf("Chunk size: %s", units.HumanSizeWithPrecision(float64(session.ChunkSize), 3))
	logger.Debugf("Initial URLs: %d", len(session.UploadURLs))

	// The server-assigned chunk size is authoritative: the file is split
	// only after session creation, with the size the session dictates.
	chunks, err := chunker.Split(params.FilePath, session.ChunkSize)
	if err != nil {
		return "", err
	}
	defer chunks.Cleanup(logger)

	if len(chunks.Chunks) != session.TotalChunks {
		logger.Warnf("chunk count mismatch: split produced %d chunks, session expects %d",
			len(chunks.Chunks), session.TotalChunks)
	}

	service := uploadService{
		client: client,
		uploader: chunkuploader.New(chunkuploader.Config{
			MaxConcurrency: params.MaxConcurrency,
		}, logger),
		logger: logger,
	}
	defer service.uploader.CloseIdleConnections()

	url, err := service.uploadChunks(ctx, session, chunks.Chunks, params)
	if err != nil {
		return "", err
	}

	return url, nil
}

type uploadService struct {
	client   apiClient
	uploader *chunkuploader.Uploader
	logger   log.Logger
}

// uploadChunks processes the chunk index range in strictly ascending
// batches: refill missing URLs, drain the upload pool, report the batch's
// proofs. A report response carrying the asset URL completes the session
// early and later batches are never sent.
func (s uploadService) uploadChunks(ctx context.Context, session createUploadResponse, chunks []chunker.Chunk, params UploadParams) (string, error) {
	cache := newURLCache(params.URLPageSize)
	cache.put(session.UploadURLs)

	total := len(chunks)
	for start := 0; start < total; start += params.BatchSize {
		end := start + params.BatchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]
		s.logger.Infof("Processing batch: chunks %d-%d (%d chunks)", batch[0].Index, batch[len(batch)-1].Index, len(batch))

		urls, err := s.resolveURLs(ctx, session.UploadID, cache, batch)
		if err != nil {
			return "", err
		}

		sources := make([]chunkuploader.Source, len(batch))
		for i, chunk := range batch {
			sources[i] = chunk
		}
		proofs, err := s.uploader.UploadBatch(ctx, sources, urls)
		if err != nil {
			return "", err
		}

		s.logger.Debugf("Reporting batch of %d chunks...", len(proofs))
		report, err := s.client.reportChunks(ctx, session.UploadID, toCompletedChunks(proofs))
		if err != nil {
			return "", err
		}
		s.logger.Debugf("Processed: %d, duplicates: %d, total completed: %d",
			report.ProcessedChunks, report.DuplicateChunks, report.TotalCompleted)

		if report.URL != "" {
			s.logger.Donef("Upload completed")
			return report.URL, nil
		}
		s.logger.Printf("Progress: %d/%d chunks uploaded", end, total)
	}

	return s.resolveAsset(ctx, session, params)
}

// resolveURLs guarantees a presigned URL for every chunk in the batch
// before any upload starts. Missing indices are refilled page by page,
// each page fetched exactly once per pass.
func (s uploadService) resolveURLs(ctx context.Context, uploadID string, cache *urlCache, batch []chunker.Chunk) (map[int]string, error) {
	indices := make([]int, len(batch))
	for i, chunk := range batch {
		indices[i] = chunk.Index
	}

	missing := cache.missing(indices)
	if len(missing) > 0 {
		s.logger.Debugf("Need URLs for chunks: %v", missing)

		pages := map[int]bool{}
		for _, index := range missing {
			pages[cache.page(index)] = true
		}
		sortedPages := make([]int, 0, len(pages))
		for page := range pages {
			sortedPages = append(sortedPages, page)
		}
		sort.Ints(sortedPages)

		for _, page := range sortedPages {
			entries, err := s.client.fetchUploadURLs(ctx, uploadID, page, cache.pageSize)
			if err != nil {
				return nil, err
			}
			s.logger.Debugf("Got %d additional URLs (page %d)", len(entries), page)
			cache.put(entries)
		}
	}

	urls := make(map[int]string, len(indices))
	for _, index := range indices {
		url, ok := cache.get(index)
		if !ok {
			return nil, URLExhaustedError{ChunkIndex: index}
		}
		urls[index] = url
	}
	return urls, nil
}

// resolveAsset is the fallback path for sessions whose final report did
// not carry the asset URL: check the session status and fetch the asset's
// published URL once the service marks it completed.
func (s uploadService) resolveAsset(ctx context.Context, session createUploadResponse, params UploadParams) (string, error) {
	s.logger.Infof("Checking final upload status...")

	var status uploadStatusResponse
	for attempt := 0; ; attempt++ {
		var err error
		status, err = s.client.uploadStatus(ctx, session.UploadID)
		if err != nil {
			return "", err
		}
		s.logger.Debugf("Status: %s, completed: %d/%d", status.Status, status.ChunksCompleted, status.TotalChunks)

		if status.Status == "completed" || attempt >= params.StatusPollAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(params.StatusPollInterval):
		}
	}

	if status.Status != "completed" {
		return "", UploadIncompleteError{Status: status.Status}
	}

	asset, err := s.client.asset(ctx, session.AssetID)
	if err != nil {
		return "", err
	}
	s.logger.Donef("Upload completed")
	return asset.URL, nil
}

func toCompletedChunks(proofs []chunkuploader.Proof) []completedChunk {
	chunks := make([]completedChunk, len(proofs))
	for i, proof := range proofs {
		chunks[i] = completedChunk{
			ChunkIndex: proof.ChunkIndex,
			Proof:      proof.Proof,
			ProofType:  proof.ProofType,
			ChunkSize:  proof.ChunkSize,
		}
	}
	return chunks
}

// newRetryableClient builds the control-plane HTTP client. Non-2xx
// responses are fatal to the flow and must surface with their status and
// body, so HTTP-level retries are disabled; retryMax only governs
// transport-level errors and defaults to zero.
func newRetryableClient(retryMax int, logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.RetryMax = retryMax
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil {
			return false, nil
		}
		retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v", retry, err)
		return retry, checkErr
	}
	return client
}

func withDefaults(params UploadParams) UploadParams {
	if params.Filename == "" {
		params.Filename = filepath.Base(params.FilePath)
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.URLPageSize <= 0 {
		params.URLPageSize = defaultURLPageSize
	}
	if params.MaxConcurrency <= 0 {
		params.MaxConcurrency = defaultMaxConcurrency
	}
	if params.StatusPollAttempts <= 0 {
		params.StatusPollAttempts = 1
	}
	return params
}
