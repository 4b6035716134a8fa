package chunkuploader

import (
	"net/http"
	"time"
)

// Config holds configuration for the chunk uploader.
type Config struct {
	// MaxConcurrency is the maximum number of parallel chunk uploads within
	// a batch. The effective pool size is min(batch size, MaxConcurrency).
	// Default: 5
	MaxConcurrency int

	// HTTPClient is the HTTP client to use for uploads.
	// If nil, a default optimized client will be created.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		HTTPClient:     nil, // Will be created by Uploader
	}
}

// DefaultHTTPClient creates an HTTP client optimized for chunk uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - chunk uploads are bounded by the caller's context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
