package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

type createUploadRequest struct {
	Filename  string `json:"filename"`
	AssetType string `json:"type"`
	TotalSize int64  `json:"total_size"`
}

type uploadURL struct {
	ChunkIndex int    `json:"chunk_index"`
	URL        string `json:"url"`
}

type createUploadResponse struct {
	UploadID    string      `json:"upload_id"`
	AssetID     string      `json:"asset_id"`
	TotalChunks int         `json:"total_chunks"`
	ChunkSize   int64       `json:"chunk_size"`
	UploadURLs  []uploadURL `json:"upload_urls"`
}

type presignedURLsRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type presignedURLsResponse struct {
	UploadURLs []uploadURL `json:"upload_urls"`
}

type completedChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	Proof      string `json:"proof"`
	ProofType  string `json:"proof_type"`
	ChunkSize  int64  `json:"chunk_size"`
}

type reportChunksRequest struct {
	CompletedChunks []completedChunk `json:"completed_chunks"`
}

type reportChunksResponse struct {
	ProcessedChunks int    `json:"processed_chunks"`
	DuplicateChunks int    `json:"duplicate_chunks"`
	TotalCompleted  int    `json:"total_completed"`
	URL             string `json:"url"`
}

type uploadStatusResponse struct {
	Status          string `json:"status"`
	ChunksCompleted int    `json:"chunks_completed"`
	TotalChunks     int    `json:"total_chunks"`
}

type assetResponse struct {
	URL string `json:"url"`
}

type apiClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	apiKey     string
	logger     log.Logger
}

func newAPIClient(client *retryablehttp.Client, baseURL string, apiKey string, logger log.Logger) apiClient {
	return apiClient{
		httpClient: client,
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

func (c apiClient) createUpload(ctx context.Context, requestBody createUploadRequest) (createUploadResponse, error) {
	url := fmt.Sprintf("%s/assets/multipart-uploads", c.baseURL)

	resp, err := c.doJSON(ctx, http.MethodPost, url, requestBody)
	if err != nil {
		return createUploadResponse{}, err
	}
	defer c.closeBody(resp)

	if !is2xx(resp.StatusCode) {
		return createUploadResponse{}, SessionCreateError{Status: resp.StatusCode, Body: readErrorBody(resp)}
	}

	var response createUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return createUploadResponse{}, err
	}
	return response, nil
}

func (c apiClient) fetchUploadURLs(ctx context.Context, uploadID string, page, limit int) ([]uploadURL, error) {
	url := fmt.Sprintf("%s/assets/multipart-uploads/%s/presigned-urls", c.baseURL, uploadID)

	resp, err := c.doJSON(ctx, http.MethodPost, url, presignedURLsRequest{Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp)

	if !is2xx(resp.StatusCode) {
		return nil, fmt.Errorf("fetch presigned URLs: HTTP %d: %s", resp.StatusCode, readErrorBody(resp))
	}

	var response presignedURLsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}
	return response.UploadURLs, nil
}

func (c apiClient) reportChunks(ctx context.Context, uploadID string, chunks []completedChunk) (reportChunksResponse, error) {
	url := fmt.Sprintf("%s/assets/multipart-uploads/%s", c.baseURL, uploadID)

	resp, err := c.doJSON(ctx, http.MethodPost, url, reportChunksRequest{CompletedChunks: chunks})
	if err != nil {
		return reportChunksResponse{}, err
	}
	defer c.closeBody(resp)

	if !is2xx(resp.StatusCode) {
		return reportChunksResponse{}, ReportError{Status: resp.StatusCode, Body: readErrorBody(resp)}
	}

	var response reportChunksResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return reportChunksResponse{}, err
	}
	return response, nil
}

func (c apiClient) uploadStatus(ctx context.Context, uploadID string) (uploadStatusResponse, error) {
	url := fmt.Sprintf("%s/assets/multipart-uploads/%s?page=1&limit=50", c.baseURL, uploadID)

	resp, err := c.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return uploadStatusResponse{}, err
	}
	defer c.closeBody(resp)

	if !is2xx(resp.StatusCode) {
		return uploadStatusResponse{}, fmt.Errorf("get upload status: HTTP %d: %s", resp.StatusCode, readErrorBody(resp))
	}

	var response uploadStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return uploadStatusResponse{}, err
	}
	return response, nil
}

func (c apiClient) asset(ctx context.Context, assetID string) (assetResponse, error) {
	url := fmt.Sprintf("%s/assets/%s", c.baseURL, assetID)

	resp, err := c.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return assetResponse{}, err
	}
	defer c.closeBody(resp)

	if !is2xx(resp.StatusCode) {
		return assetResponse{}, fmt.Errorf("get asset: HTTP %d: %s", resp.StatusCode, readErrorBody(resp))
	}

	var response assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return assetResponse{}, err
	}
	return response, nil
}

func (c apiClient) doJSON(ctx context.Context, method, url string, requestBody interface{}) (*http.Response, error) {
	var rawBody interface{}
	if requestBody != nil {
		body, err := json.Marshal(requestBody)
		if err != nil {
			return nil, err
		}
		rawBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rawBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c apiClient) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err.Error()
	}
	return string(body)
}
