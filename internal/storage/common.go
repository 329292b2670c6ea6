package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

type BlobMetadata struct {
	Key    string
	SHA256 string // of the compressed bytes
	Size   int64
}

// PrepareBlob compresses, hashes, and generates a key for an export array.
func PrepareBlob(raw []byte, runID uuid.UUID, from, to time.Time) ([]byte, BlobMetadata, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, BlobMetadata{}, fmt.Errorf("storage: gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, BlobMetadata{}, fmt.Errorf("storage: gzip close: %w", err)
	}

	compressed := buf.Bytes()
	sum := sha256.Sum256(compressed)
	sha256hex := hex.EncodeToString(sum[:])

	// Key: exports/<from YYYY>/<MM>/<DD>/<from>_<to>_<run>_<sha[:8]>.json.gz
	key := fmt.Sprintf("exports/%s/%s_%s_%s_%s.json.gz",
		from.UTC().Format("2006/01/02"),
		from.UTC().Format("20060102"),
		to.UTC().Format("20060102"),
		runID,
		sha256hex[:8],
	)

	return compressed, BlobMetadata{
		Key:    key,
		SHA256: sha256hex,
		Size:   int64(len(compressed)),
	}, nil
}

// DecompressBlob reads gzip compressed data from a reader.
func DecompressBlob(r io.Reader) ([]byte, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("storage: gzip reader: %w", err)
	}
	defer gr.Close()

	return io.ReadAll(gr)
}
