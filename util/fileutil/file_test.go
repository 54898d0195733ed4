package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPathType(t *testing.T) {
	assert.Equal(t, "S3", GetPathType("s3://bucket/key"))
	assert.Equal(t, "os", GetPathType("/tmp/file.csv"))
}

func TestPathJoinSafe(t *testing.T) {
	assert.Equal(t, "s3://bucket/models/model.onnx", PathJoinSafe("s3://bucket/", "models", "model.onnx"))
	assert.Equal(t, filepath.Join("a", "b", "c"), PathJoinSafe("a", "b", "c"))
}

func TestReadFileBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	err := os.WriteFile(path, []byte("hello"), 0o644)
	assert.NoError(t, err)

	data, err := ReadFileBytes(path)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = ReadFileBytes(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFileExistsAndStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	assert.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	exists, err := FileExists(path)
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExists(filepath.Join(dir, "missing.txt"))
	assert.NoError(t, err)
	assert.False(t, exists)

	stats, err := FileStats(dir)
	assert.NoError(t, err)
	assert.True(t, stats.IsDir())
}

func TestNewFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	writer, err := NewFileWriter(path, "")
	assert.NoError(t, err)
	_, err = writer.Write([]byte("line\n"))
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())

	data, err := ReadFileBytes(path)
	assert.NoError(t, err)
	assert.Equal(t, []byte("line\n"), data)
}
