package arrayfile_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriziosalmi/activitylogs/internal/arrayfile"
)

func records(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriter_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	assert.Equal(t, "[", readFile(t, path))

	require.NoError(t, w.Finalize())
	assert.Equal(t, "[]", readFile(t, path))
}

func TestWriter_EmptyBatchesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(nil))
	require.NoError(t, w.Append(records()))
	require.NoError(t, w.Finalize())

	assert.Equal(t, "[]", readFile(t, path))
	assert.EqualValues(t, 0, w.Count())
}

func TestWriter_SinglePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(records(`{"id": "a"}`, `{"id":"b"}`)))
	assert.Equal(t, `[{"id":"a"},{"id":"b"},`, readFile(t, path), "intermediate state carries one trailing separator")

	require.NoError(t, w.Finalize())
	assert.JSONEq(t, `[{"id":"a"},{"id":"b"}]`, readFile(t, path))
}

func TestWriter_ManyPagesPreserveOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(records(`{"n":1}`, `{"n":2}`)))
	require.NoError(t, w.Append(records()))
	require.NoError(t, w.Append(records(`{"n":3}`)))
	require.NoError(t, w.Append(records(`{"n":4}`, `{"n":5}`, `{"n":6}`)))
	require.NoError(t, w.Finalize())

	var got []struct{ N int }
	require.NoError(t, json.Unmarshal([]byte(readFile(t, path)), &got))
	require.Len(t, got, 6)
	for i, rec := range got {
		assert.Equal(t, i+1, rec.N)
	}
	assert.EqualValues(t, 6, w.Count())
}

func TestWriter_NoHTMLEscaping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(records(`{"op":"<write> & delete"}`)))
	require.NoError(t, w.Finalize())

	assert.Equal(t, `[{"op":"<write> & delete"}]`, readFile(t, path))
}

func TestWriter_InvalidRecordLeavesPrefixIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(records(`{"id":"a"}`)))

	err = w.Append(records(`{"id":"b"}`, `{"id":`))
	var storageErr *arrayfile.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "append", storageErr.Op)
	assert.Equal(t, `[{"id":"a"},`, readFile(t, path), "a rejected batch must not leave partial records")

	require.NoError(t, w.Finalize())
	assert.JSONEq(t, `[{"id":"a"}]`, readFile(t, path))
}

func TestWriter_FinalizeOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	assert.ErrorIs(t, w.Finalize(), arrayfile.ErrFinalized)
	assert.ErrorIs(t, w.Append(records(`{}`)), arrayfile.ErrFinalized)
	assert.Equal(t, "[]", readFile(t, path))
}

func TestWriter_BeginTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"stale":true}]`), 0o644))

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, w.Finalize())
	assert.Equal(t, "[]", readFile(t, path))
}

func TestBegin_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "logs.json")

	w, err := arrayfile.Begin(path)
	assert.Nil(t, w)
	var storageErr *arrayfile.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "begin", storageErr.Op)
}

func TestWriter_FileRemovedMidRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")

	w, err := arrayfile.Begin(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	var storageErr *arrayfile.StorageError
	assert.True(t, errors.As(w.Append(records(`{}`)), &storageErr))
	assert.True(t, errors.As(w.Finalize(), &storageErr))
}
