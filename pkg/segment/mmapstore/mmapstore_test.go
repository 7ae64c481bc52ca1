package mmapstore

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVectorsFile crafts a vectors file by hand (header + row-major f32
// data) since MmapVectors has no writer path of its own; the store is
// meant to be fed by a bulk segment builder elsewhere.
func writeVectorsFile(t *testing.T, path string, dim int, rows [][]float32) {
	t.Helper()
	buf := make([]byte, HeaderSize+len(rows)*dim*floatSize)
	copy(buf, VectorsHeader[:])
	offset := HeaderSize
	for _, row := range rows {
		for _, f := range row {
			binary.LittleEndian.PutUint32(buf[offset:offset+floatSize], math.Float32bits(f))
			offset += floatSize
		}
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestOpenReadsExistingVectors(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors")
	deletedPath := filepath.Join(dir, "deleted")

	writeVectorsFile(t, vectorsPath, 2, [][]float32{{1, 2}, {3, 4}})

	store, err := Open(vectorsPath, deletedPath, 2)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, uint64(2), store.NumVectors())
	assert.Equal(t, 2, store.Dim())

	v0, err := store.RawVector(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v0)

	v1, err := store.RawVector(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, v1)
}

func TestOpenCreatesEmptyFilesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "vectors"), filepath.Join(dir, "deleted"), 4)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, uint64(0), store.NumVectors())
	assert.Equal(t, uint64(0), store.DeletedCount())
}

func TestOpenRejectsNonPositiveDim(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "vectors"), filepath.Join(dir, "deleted"), 0)
	assert.Error(t, err)
}

func TestOpenRejectsBadMagicHeader(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors")
	require.NoError(t, os.WriteFile(vectorsPath, []byte("XXXX"), 0o644))

	_, err := Open(vectorsPath, filepath.Join(dir, "deleted"), 2)
	assert.Error(t, err)
}

func TestDeleteIsIdempotentAndTracksCount(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors")
	writeVectorsFile(t, vectorsPath, 1, [][]float32{{1}, {2}, {3}})

	store, err := Open(vectorsPath, filepath.Join(dir, "deleted"), 1)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Delete(1))
	require.NoError(t, store.Delete(1))
	assert.Equal(t, uint64(1), store.DeletedCount())

	deleted, err := store.Deleted(1)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Deleted(0)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGetVectorReturnsNilForDeleted(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors")
	writeVectorsFile(t, vectorsPath, 1, [][]float32{{42}})

	store, err := Open(vectorsPath, filepath.Join(dir, "deleted"), 1)
	require.NoError(t, err)
	defer store.Close()

	v, err := store.GetVector(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{42}, v)

	require.NoError(t, store.Delete(0))
	v, err = store.GetVector(0)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDataOffsetOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors")
	writeVectorsFile(t, vectorsPath, 1, [][]float32{{1}})

	store, err := Open(vectorsPath, filepath.Join(dir, "deleted"), 1)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.DataOffset(5)
	assert.False(t, ok)

	_, err = store.RawVector(5)
	assert.Error(t, err)
}

func TestDeletePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors")
	deletedPath := filepath.Join(dir, "deleted")
	writeVectorsFile(t, vectorsPath, 1, [][]float32{{1}, {2}})

	store, err := Open(vectorsPath, deletedPath, 1)
	require.NoError(t, err)
	require.NoError(t, store.Delete(1))
	require.NoError(t, store.Flusher()())
	require.NoError(t, store.Close())

	reopened, err := Open(vectorsPath, deletedPath, 1)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(1), reopened.DeletedCount())
	deleted, err := reopened.Deleted(1)
	require.NoError(t, err)
	assert.True(t, deleted)
}
