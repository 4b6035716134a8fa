package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrFileNotFound is returned when the source path does not resolve to a
// readable regular file.
var ErrFileNotFound = errors.New("file not found")

// Chunk is one contiguous byte range of the source file, materialized as a
// standalone file in the owning ChunkSet's scratch directory. Indices are
// 1-based to match the upload session's chunk numbering.
type Chunk struct {
	Index int
	Path  string
	Size  int64
}

// ChunkIndex returns the 1-based index of the chunk.
func (c Chunk) ChunkIndex() int {
	return c.Index
}

// ChunkSizeBytes returns the chunk's size in bytes.
func (c Chunk) ChunkSizeBytes() int64 {
	return c.Size
}

// Open returns a reader over the chunk's bytes. Safe to call concurrently
// for distinct chunks.
func (c Chunk) Open() (io.ReadCloser, error) {
	file, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open chunk %d: %w", c.Index, err)
	}
	return file, nil
}

// ChunkSet is the result of splitting a file: the scratch directory and the
// ordered chunks inside it. The set owns the scratch directory until
// Cleanup is called.
type ChunkSet struct {
	Dir       string
	Chunks    []Chunk
	TotalSize int64
}

// Split cuts the file at path into chunkSize-byte chunks, writing each one
// into a scratch directory next to the source file (named after the file's
// stem). Every chunk except possibly the last has size exactly chunkSize.
// The chunks concatenated in index order reproduce the file byte-for-byte.
func Split(path string, chunkSize int64) (*ChunkSet, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	defer file.Close() //nolint:errcheck

	dir := ScratchDir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	set := &ChunkSet{Dir: dir, TotalSize: info.Size()}
	for index := 1; ; index++ {
		chunkPath := filepath.Join(dir, fmt.Sprintf("chunk_%04d", index))
		written, err := writeChunk(file, chunkPath, chunkSize)
		if err != nil {
			// a failed split leaves no scratch output behind
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("write chunk %d: %w", index, err)
		}
		if written == 0 {
			_ = os.Remove(chunkPath)
			break
		}

		set.Chunks = append(set.Chunks, Chunk{
			Index: index,
			Path:  chunkPath,
			Size:  written,
		})
		if written < chunkSize {
			break
		}
	}

	return set, nil
}

// Cleanup removes every chunk file and the scratch directory. It runs on
// every exit path of an upload and must not mask the primary outcome, so
// failures are logged and swallowed.
func (s *ChunkSet) Cleanup(logger log.Logger) {
	if s == nil {
		return
	}

	for _, chunk := range s.Chunks {
		if err := os.Remove(chunk.Path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("failed to remove chunk file %s: %s", chunk.Path, err)
		}
	}
	if err := os.Remove(s.Dir); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove chunk directory %s: %s", s.Dir, err)
	}
}

// ScratchDir returns the scratch directory used for the chunks of the file
// at path. Two concurrent uploads of the same file collide on this
// directory; each upload assumes exclusive ownership.
func ScratchDir(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), stem+"_chunks")
}

func writeChunk(src io.Reader, path string, size int64) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	written, err := io.CopyN(out, src, size)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		return 0, closeErr
	}
	if err != nil && err != io.EOF {
		return 0, err
	}
	return written, nil
}
