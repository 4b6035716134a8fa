package network

import "fmt"

// SessionCreateError is returned when the asset service refuses to open an
// upload session.
type SessionCreateError struct {
	Status int
	Body   string
}

func (e SessionCreateError) Error() string {
	return fmt.Sprintf("create upload session: HTTP %d: %s", e.Status, e.Body)
}

// URLExhaustedError is returned when the service cannot produce a presigned
// URL for a chunk index even after a refill. This indicates a server-side
// inconsistency and is not recoverable locally.
type URLExhaustedError struct {
	ChunkIndex int
}

func (e URLExhaustedError) Error() string {
	return fmt.Sprintf("no presigned URL available for chunk %d", e.ChunkIndex)
}

// ReportError is returned when the service rejects a completion report.
type ReportError struct {
	Status int
	Body   string
}

func (e ReportError) Error() string {
	return fmt.Sprintf("report completed chunks: HTTP %d: %s", e.Status, e.Body)
}

// UploadIncompleteError is returned when all chunks were uploaded and
// reported but the session never reached the completed status.
type UploadIncompleteError struct {
	Status string
}

func (e UploadIncompleteError) Error() string {
	return fmt.Sprintf("upload not completed, status: %s", e.Status)
}
