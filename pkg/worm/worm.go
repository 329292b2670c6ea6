// Package worm provides tamper-evidence helpers for export artifacts: a hash
// chain across runs and SHA-256 checks of the files themselves.
package worm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// GenesisHash seeds the chain for the first recorded run.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainHash links a run to its predecessor:
// SHA-256(prevChainHash || artifactSHA256 || runID).
func ChainHash(prevChainHash, artifactSHA256, runID string) string {
	h := sha256.New()
	h.Write([]byte(prevChainHash))
	h.Write([]byte(artifactSHA256))
	h.Write([]byte(runID))
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile streams path through SHA-256 and returns the hex digest and the
// number of bytes read.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("worm: open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("worm: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// VerifyFile confirms that the SHA-256 of path matches expectedHex.
func VerifyFile(path, expectedHex string) error {
	got, _, err := HashFile(path)
	if err != nil {
		return err
	}
	if got != expectedHex {
		return fmt.Errorf("worm: sha256 mismatch: got %s, expected %s", got, expectedHex)
	}
	return nil
}

// VerifyBytes confirms that the SHA-256 of data matches expectedHex.
func VerifyBytes(data []byte, expectedHex string) error {
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != expectedHex {
		return fmt.Errorf("worm: sha256 mismatch: got %s, expected %s", got, expectedHex)
	}
	return nil
}
