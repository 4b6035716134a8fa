//go:build integration
// +build integration

package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
)

var logger = log.NewLogger()

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

// generateTestFile writes a deterministic file of the given size into a
// temp dir and returns its path and contents.
func generateTestFile(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 253)
	}
	path := filepath.Join(t.TempDir(), "integration-test.bin")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write test file: %s", err)
	}
	return path, data
}
