package arrayfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Validate streams path and checks that it holds exactly one JSON array.
// It returns the number of elements.
func Validate(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("arrayfile: open: %w", err)
	}
	defer f.Close()

	return validate(bufio.NewReader(f))
}

// ValidateBytes is Validate for an in-memory copy, such as an archived export.
func ValidateBytes(data []byte) (int64, error) {
	return validate(bytes.NewReader(data))
}

func validate(r io.Reader) (int64, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("arrayfile: read opening delimiter: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != openDelim {
		return 0, fmt.Errorf("arrayfile: expected '[', got %v", tok)
	}

	var n int64
	for dec.More() {
		var elem json.RawMessage
		if err := dec.Decode(&elem); err != nil {
			return n, fmt.Errorf("arrayfile: element %d: %w", n, err)
		}
		n++
	}

	if _, err := dec.Token(); err != nil {
		return n, fmt.Errorf("arrayfile: read closing delimiter: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("arrayfile: trailing data after array")
	}
	return n, nil
}
