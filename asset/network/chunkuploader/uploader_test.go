package chunkuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

type byteSource struct {
	index int
	data  []byte
}

func (s byteSource) ChunkIndex() int       { return s.index }
func (s byteSource) ChunkSizeBytes() int64 { return int64(len(s.data)) }
func (s byteSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func TestUploader_UploadBatch_Success(t *testing.T) {
	var mu sync.Mutex
	received := map[int][]byte{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("Expected octet-stream content type, got %s", ct)
		}

		index, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/chunks/"))
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received[index] = body
		mu.Unlock()

		w.Header().Set("ETag", fmt.Sprintf("\"etag-%d\"", index))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	chunks := []Source{
		byteSource{index: 1, data: []byte("chunk1-data")},
		byteSource{index: 2, data: []byte("chunk2-data")},
		byteSource{index: 3, data: []byte("chunk3")},
	}
	urls := map[int]string{}
	for _, chunk := range chunks {
		urls[chunk.ChunkIndex()] = fmt.Sprintf("%s/chunks/%d", server.URL, chunk.ChunkIndex())
	}

	uploader := New(DefaultConfig(), log.NewLogger())
	defer uploader.CloseIdleConnections()

	proofs, err := uploader.UploadBatch(context.Background(), chunks, urls)
	if err != nil {
		t.Fatalf("UploadBatch failed: %v", err)
	}

	if len(proofs) != len(chunks) {
		t.Fatalf("Expected %d proofs, got %d", len(chunks), len(proofs))
	}
	for i, proof := range proofs {
		wantIndex := i + 1
		if proof.ChunkIndex != wantIndex {
			t.Errorf("Proof %d: expected chunk index %d, got %d", i, wantIndex, proof.ChunkIndex)
		}
		wantProof := fmt.Sprintf("etag-%d", wantIndex)
		if proof.Proof != wantProof {
			t.Errorf("Expected proof %q (quotes stripped), got %q", wantProof, proof.Proof)
		}
		if proof.ProofType != ProofTypeETag {
			t.Errorf("Expected proof type %q, got %q", ProofTypeETag, proof.ProofType)
		}
	}

	for _, chunk := range chunks {
		want := chunk.(byteSource).data
		if !bytes.Equal(received[chunk.ChunkIndex()], want) {
			t.Errorf("Chunk %d: uploaded bytes differ from source", chunk.ChunkIndex())
		}
	}

	if uploader.Stats().FinishedCount() != int64(len(chunks)) {
		t.Errorf("Expected %d finished chunks in stats, got %d", len(chunks), uploader.Stats().FinishedCount())
	}
}

func TestUploader_UploadBatch_UploadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("URL expired"))
	}))
	defer server.Close()

	chunks := []Source{byteSource{index: 4, data: []byte("data")}}
	urls := map[int]string{4: server.URL}

	uploader := New(DefaultConfig(), log.NewLogger())
	defer uploader.CloseIdleConnections()

	_, err := uploader.UploadBatch(context.Background(), chunks, urls)
	var uploadErr ChunkUploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("Expected ChunkUploadError, got %v", err)
	}
	if uploadErr.ChunkIndex != 4 {
		t.Errorf("Expected chunk index 4, got %d", uploadErr.ChunkIndex)
	}
	if uploadErr.Status != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", uploadErr.Status)
	}
}

func TestUploader_UploadBatch_MissingProof(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	chunks := []Source{byteSource{index: 1, data: []byte("data")}}
	urls := map[int]string{1: server.URL}

	uploader := New(DefaultConfig(), log.NewLogger())
	defer uploader.CloseIdleConnections()

	_, err := uploader.UploadBatch(context.Background(), chunks, urls)
	var missingErr MissingProofError
	if !errors.As(err, &missingErr) {
		t.Fatalf("Expected MissingProofError, got %v", err)
	}
	if missingErr.ChunkIndex != 1 {
		t.Errorf("Expected chunk index 1, got %d", missingErr.ChunkIndex)
	}
}

func TestUploader_UploadBatch_MissingURL(t *testing.T) {
	chunks := []Source{
		byteSource{index: 1, data: []byte("data")},
		byteSource{index: 2, data: []byte("data")},
	}
	urls := map[int]string{1: "http://storage.example.com/1"}

	uploader := New(DefaultConfig(), log.NewLogger())

	_, err := uploader.UploadBatch(context.Background(), chunks, urls)
	if err == nil {
		t.Fatal("Expected error for chunk without a URL")
	}
}

func TestUploader_UploadBatch_ConcurrencyCap(t *testing.T) {
	var current, max int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if c <= m || atomic.CompareAndSwapInt32(&max, m, c) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)

		w.Header().Set("ETag", "\"etag\"")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var chunks []Source
	urls := map[int]string{}
	for i := 1; i <= 10; i++ {
		chunks = append(chunks, byteSource{index: i, data: []byte("data")})
		urls[i] = server.URL
	}

	config := DefaultConfig()
	config.MaxConcurrency = 3

	uploader := New(config, log.NewLogger())
	defer uploader.CloseIdleConnections()

	_, err := uploader.UploadBatch(context.Background(), chunks, urls)
	if err != nil {
		t.Fatalf("UploadBatch failed: %v", err)
	}

	if atomic.LoadInt32(&max) > 3 {
		t.Errorf("Expected at most 3 in-flight uploads, observed %d", max)
	}
}

func TestUploader_UploadBatch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		w.Header().Set("ETag", "\"etag\"")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	chunks := []Source{byteSource{index: 1, data: []byte("data")}}
	urls := map[int]string{1: server.URL}

	uploader := New(DefaultConfig(), log.NewLogger())
	defer uploader.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := uploader.UploadBatch(ctx, chunks, urls)
	if err == nil {
		t.Fatal("Expected error due to context cancellation")
	}
}

func TestUploader_UploadBatch_Empty(t *testing.T) {
	uploader := New(DefaultConfig(), log.NewLogger())

	proofs, err := uploader.UploadBatch(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("UploadBatch failed: %v", err)
	}
	if len(proofs) != 0 {
		t.Errorf("Expected no proofs, got %d", len(proofs))
	}
}
