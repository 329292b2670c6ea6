// Package arrayfile builds a JSON array on disk one batch at a time.
//
// Every record is written followed by a separator, so between appends the
// file is "[" plus a comma-terminated list: a valid array prefix once the
// last separator is ignored. Finalize drops that separator and closes the
// array. Each operation opens and closes the file itself; no handle is held
// between calls.
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

const (
	openDelim  = '['
	closeDelim = ']'
	separator  = ','
)

// ErrFinalized is returned by Append and Finalize once the array is closed.
var ErrFinalized = errors.New("arrayfile: already finalized")

// StorageError wraps an I/O failure on the output file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("arrayfile: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Writer is a handle on one output array.
type Writer struct {
	path      string
	count     int64
	finalized bool
}

// Begin creates or truncates path and writes the opening delimiter.
func Begin(path string) (*Writer, error) {
	w := &Writer{path: path}
	err := w.withFile(os.O_CREATE|os.O_TRUNC|os.O_WRONLY, "begin", func(f *os.File) error {
		_, err := f.Write([]byte{openDelim})
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Path is the output file.
func (w *Writer) Path() string { return w.path }

// Count is the number of records appended so far.
func (w *Writer) Count() int64 { return w.count }

// Append serializes each record and writes it, in order, followed by a
// separator. If a write fails the file is cut back to its size before the
// call so no half-written record is left behind.
func (w *Writer) Append(records []json.RawMessage) error {
	if w.finalized {
		return ErrFinalized
	}
	if len(records) == 0 {
		return nil
	}

	return w.withFile(os.O_RDWR, "append", func(f *os.File) error {
		before, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}

		bw := bufio.NewWriter(f)
		var buf bytes.Buffer
		var written int64
		err = func() error {
			for _, rec := range records {
				buf.Reset()
				// Compact rather than Marshal: no HTML escaping of the payload.
				if err := json.Compact(&buf, rec); err != nil {
					return err
				}
				buf.WriteByte(separator)
				if _, err := bw.Write(buf.Bytes()); err != nil {
					return err
				}
				written++
			}
			return bw.Flush()
		}()
		if err != nil {
			// best effort: restore the last good prefix
			_ = f.Truncate(before)
			return err
		}
		w.count += written
		return nil
	})
}

// Finalize removes the trailing separator, if any record was appended, and
// writes the closing delimiter. It may be called once.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	return w.withFile(os.O_RDWR, "finalize", func(f *os.File) error {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		end := info.Size()

		if w.count > 0 {
			last := make([]byte, 1)
			if _, err := f.ReadAt(last, end-1); err != nil {
				return err
			}
			if last[0] != separator {
				return fmt.Errorf("expected trailing %q, found %q", separator, last[0])
			}
			end--
			if err := f.Truncate(end); err != nil {
				return err
			}
		}

		_, err = f.WriteAt([]byte{closeDelim}, end)
		return err
	})
}

// withFile opens the target, runs fn and always closes the handle. A close
// error is reported when fn itself succeeded.
func (w *Writer) withFile(flag int, op string, fn func(*os.File) error) (err error) {
	f, err := os.OpenFile(w.path, flag, 0o644)
	if err != nil {
		return &StorageError{Op: op, Path: w.path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &StorageError{Op: op, Path: w.path, Err: cerr}
		}
	}()

	if err := fn(f); err != nil {
		return &StorageError{Op: op, Path: w.path, Err: err}
	}
	return nil
}
