package chunkuploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Uploader handles parallel chunk uploads to presigned storage URLs.
// It performs exactly one attempt per chunk; retry policy belongs to the
// caller.
type Uploader struct {
	config     Config
	httpClient *http.Client
	logger     log.Logger
	stats      *Stats
}

// New creates a new Uploader with the given configuration.
func New(config Config, logger log.Logger) *Uploader {
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}

	return &Uploader{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		stats:      NewStats(),
	}
}

// UploadBatch uploads every chunk in the batch to its presigned URL in
// parallel, capped at min(batch size, MaxConcurrency) in-flight uploads.
// It fails on the first chunk error and returns the collected proofs in
// ascending chunk index order otherwise.
func (u *Uploader) UploadBatch(ctx context.Context, chunks []Source, urls map[int]string) ([]Proof, error) {
	if len(chunks) == 0 {
		return []Proof{}, nil
	}

	for _, chunk := range chunks {
		if _, ok := urls[chunk.ChunkIndex()]; !ok {
			return nil, fmt.Errorf("no presigned URL for chunk %d", chunk.ChunkIndex())
		}
	}

	concurrency := u.config.MaxConcurrency
	if len(chunks) < concurrency {
		concurrency = len(chunks)
	}

	resultChan := make(chan chunkResult, len(chunks))
	semaphore := make(chan struct{}, concurrency)

	for _, chunk := range chunks {
		go func(chunk Source) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			proof, err := u.uploadChunk(ctx, chunk, urls[chunk.ChunkIndex()])
			resultChan <- chunkResult{proof: proof, err: err}
		}(chunk)
	}

	proofs := make([]Proof, 0, len(chunks))
	for completed := 0; completed < len(chunks); completed++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("upload cancelled while waiting for chunks: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, result.err
			}
			proofs = append(proofs, result.proof)
		}
	}

	sort.Slice(proofs, func(i, j int) bool {
		return proofs[i].ChunkIndex < proofs[j].ChunkIndex
	})

	return proofs, nil
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (u *Uploader) CloseIdleConnections() {
	if transport, ok := u.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func (u *Uploader) uploadChunk(ctx context.Context, chunk Source, url string) (Proof, error) {
	index := chunk.ChunkIndex()

	body, err := chunk.Open()
	if err != nil {
		return Proof{}, fmt.Errorf("get chunk %d: %w", index, err)
	}
	defer body.Close() //nolint:errcheck

	u.logger.Debugf("Uploading chunk %d (%d bytes)", index, chunk.ChunkSizeBytes())
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return Proof{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = chunk.ChunkSizeBytes()

	resp, err := u.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Proof{}, fmt.Errorf("chunk %d upload cancelled: %w", index, ctx.Err())
		}
		return Proof{}, fmt.Errorf("upload chunk %d: %w", index, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := make([]byte, 1024)
		n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
		return Proof{}, ChunkUploadError{
			ChunkIndex: index,
			Status:     resp.StatusCode,
			Body:       string(errorBody[:n]),
		}
	}

	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	if etag == "" {
		return Proof{}, MissingProofError{ChunkIndex: index}
	}

	took := time.Since(start)
	u.stats.Update(took)
	u.logger.Debugf("Chunk %d uploaded in %v [finished=%d] [avg=%v], ETag: %s",
		index, took.Round(time.Millisecond), u.stats.FinishedCount(),
		u.stats.Average().Round(time.Millisecond), etag)

	return Proof{
		ChunkIndex: index,
		Proof:      etag,
		ProofType:  ProofTypeETag,
		ChunkSize:  chunk.ChunkSizeBytes(),
	}, nil
}
