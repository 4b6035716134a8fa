// Package chunkuploader uploads file chunks to presigned storage URLs in
// parallel and collects the per-chunk receipt proofs (ETags) the asset
// service expects in completion reports.
package chunkuploader

import (
	"fmt"
	"io"
)

// ProofTypeETag is the proof type understood by the asset service.
const ProofTypeETag = "etag"

// Source provides the bytes of one chunk for upload. Open may be called
// concurrently for distinct chunks.
type Source interface {
	// ChunkIndex returns the chunk's 1-based index within the upload session.
	ChunkIndex() int

	// ChunkSizeBytes returns the chunk's size in bytes.
	ChunkSizeBytes() int64

	// Open returns a reader over the chunk's bytes.
	Open() (io.ReadCloser, error)
}

// Proof is the evidence of one chunk's successful receipt by the storage
// endpoint, as reported back to the asset service.
type Proof struct {
	ChunkIndex int
	Proof      string
	ProofType  string
	ChunkSize  int64
}

// ChunkUploadError is returned when the storage endpoint rejects a chunk.
type ChunkUploadError struct {
	ChunkIndex int
	Status     int
	Body       string
}

func (e ChunkUploadError) Error() string {
	return fmt.Sprintf("upload chunk %d: HTTP %d: %s", e.ChunkIndex, e.Status, e.Body)
}

// MissingProofError is returned when a chunk upload succeeds but the
// response carries no ETag header, leaving the upload unprovable.
type MissingProofError struct {
	ChunkIndex int
}

func (e MissingProofError) Error() string {
	return fmt.Sprintf("no ETag in response for chunk %d", e.ChunkIndex)
}

type chunkResult struct {
	proof Proof
	err   error
}
