// Package mmapstore implements the append-only memory-mapped vector store
// a fixed 4-byte magic header followed by a row-major array
// of dim x f32 vectors, with a parallel soft-delete bitmap file. Grounded
// on original_source/lib/segment/src/vector_storage/mmap_vectors.rs.
package mmapstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/cuemby/vecton/pkg/vecerr"
)

// HeaderSize is the fixed magic-header length on both files.
const HeaderSize = 4

const floatSize = 4

// VectorsHeader and DeletedHeader are the magic bytes written to a fresh
// vectors/deleted file pair and checked on open.
var (
	VectorsHeader = [HeaderSize]byte{'d', 'a', 't', 'a'}
	DeletedHeader = [HeaderSize]byte{'d', 'r', 'o', 'p'}
)

// MmapVectors is a fixed-dimension, append-only vector store backed by
// two memory-mapped files: vectors (read-only after open) and a parallel
// soft-delete bitmap (read/write).
type MmapVectors struct {
	dim         int
	numVectors  uint64
	vectorsMmap mmap.MMap
	vectorsFile *os.File

	mu           sync.RWMutex
	deletedMmap  mmap.MMap
	deletedFile  *os.File
	deletedCount uint64
}

// Open creates the vectors/deleted files if missing (writing their magic
// headers) and memory-maps both. dim must be the fixed vector width for
// every row ever written through this store.
func Open(vectorsPath, deletedPath string, dim int) (*MmapVectors, error) {
	if dim <= 0 {
		return nil, vecerr.NewBadInput("mmapstore: dim must be > 0")
	}

	vf, vmm, err := openReadOnlyWithHeader(vectorsPath, VectorsHeader)
	if err != nil {
		return nil, err
	}

	numVectors := uint64(0)
	if len(vmm) >= HeaderSize {
		numVectors = uint64(len(vmm)-HeaderSize) / uint64(dim*floatSize)
	}

	df, dmm, err := openReadWriteWithHeader(deletedPath, DeletedHeader, numVectors)
	if err != nil {
		_ = vmm.Unmap()
		_ = vf.Close()
		return nil, err
	}

	deletedCount := uint64(0)
	for _, b := range dmm[HeaderSize:] {
		if b != 0 {
			deletedCount++
		}
	}

	return &MmapVectors{
		dim:          dim,
		numVectors:   numVectors,
		vectorsMmap:  vmm,
		vectorsFile:  vf,
		deletedMmap:  dmm,
		deletedFile:  df,
		deletedCount: deletedCount,
	}, nil
}

func ensureFileExists(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, vecerr.NewServiceErrorf("mmapstore: open %s: %v", path, err)
	}
	return f, nil
}

func openReadOnlyWithHeader(path string, header [HeaderSize]byte) (*os.File, mmap.MMap, error) {
	f, err := ensureFileExists(path)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureHeader(f, header); err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, nil, vecerr.NewServiceErrorf("mmapstore: mmap %s: %v", path, err)
	}
	if err := checkMagic(m, header); err != nil {
		_ = m.Unmap()
		_ = f.Close()
		return nil, nil, err
	}
	return f, m, nil
}

func openReadWriteWithHeader(path string, header [HeaderSize]byte, numVectors uint64) (*os.File, mmap.MMap, error) {
	f, err := ensureFileExists(path)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureHeader(f, header); err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, vecerr.NewServiceErrorf("mmapstore: stat %s: %v", path, err)
	}
	wantSize := int64(HeaderSize) + int64(numVectors)
	if info.Size() < wantSize {
		if err := f.Truncate(wantSize); err != nil {
			_ = f.Close()
			return nil, nil, vecerr.NewServiceErrorf("mmapstore: truncate %s: %v", path, err)
		}
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		return nil, nil, vecerr.NewServiceErrorf("mmapstore: mmap %s: %v", path, err)
	}
	if err := checkMagic(m, header); err != nil {
		_ = m.Unmap()
		_ = f.Close()
		return nil, nil, err
	}
	return f, m, nil
}

// ensureHeader writes header at offset 0 if the file is new (zero length
// before this call would not reach here since ensureFileExists leaves it
// at whatever size exists; a freshly created file is size 0).
func ensureHeader(f *os.File, header [HeaderSize]byte) error {
	info, err := f.Stat()
	if err != nil {
		return vecerr.NewServiceErrorf("mmapstore: stat: %v", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteAt(header[:], 0); err != nil {
			return vecerr.NewServiceErrorf("mmapstore: write header: %v", err)
		}
	}
	return nil
}

func checkMagic(m mmap.MMap, header [HeaderSize]byte) error {
	if len(m) < HeaderSize {
		return vecerr.NewServiceError("mmapstore: file too short for magic header")
	}
	for i := 0; i < HeaderSize; i++ {
		if m[i] != header[i] {
			return vecerr.NewServiceError("mmapstore: magic header mismatch")
		}
	}
	return nil
}

// DataOffset returns the byte offset of key's row, or false if key is out
// of bounds.
func (v *MmapVectors) DataOffset(key uint64) (int, bool) {
	if key >= v.numVectors {
		return 0, false
	}
	return int(key)*v.dim*floatSize + HeaderSize, true
}

// RawVector returns a zero-copy slice over key's row.
func (v *MmapVectors) RawVector(key uint64) ([]float32, error) {
	offset, ok := v.DataOffset(key)
	if !ok {
		return nil, fmt.Errorf("mmapstore: key %d out of bounds (num_vectors=%d)", key, v.numVectors)
	}
	raw := v.vectorsMmap[offset : offset+v.dim*floatSize]
	out := make([]float32, v.dim)
	for i := 0; i < v.dim; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*floatSize : (i+1)*floatSize])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// Deleted reports the deletion bit for key, or an error if out of range.
func (v *MmapVectors) Deleted(key uint64) (bool, error) {
	if key >= v.numVectors {
		return false, fmt.Errorf("mmapstore: key %d out of bounds", key)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.deletedMmap[HeaderSize+key] != 0, nil
}

// GetVector returns key's vector, or nil if it is deleted or unknown.
func (v *MmapVectors) GetVector(key uint64) ([]float32, error) {
	deleted, err := v.Deleted(key)
	if err != nil {
		return nil, nil
	}
	if deleted {
		return nil, nil
	}
	return v.RawVector(key)
}

// Delete marks key deleted. Idempotent: deleted_count only increments on
// a 0->1 transition.
func (v *MmapVectors) Delete(key uint64) error {
	if key >= v.numVectors {
		return fmt.Errorf("mmapstore: key %d out of bounds", key)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.deletedMmap[HeaderSize+key] != 0 {
		return nil
	}
	v.deletedMmap[HeaderSize+key] = 1
	v.deletedCount++
	return nil
}

// DeletedCount returns the number of rows currently marked deleted.
func (v *MmapVectors) DeletedCount() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.deletedCount
}

func (v *MmapVectors) NumVectors() uint64 { return v.numVectors }
func (v *MmapVectors) Dim() int           { return v.dim }

// Flusher returns a closure that flushes the deletion mmap when later
// invoked. Callers schedule it to run after the WAL sync point so a
// deletion is never visible as durable before the operation that caused
// it is durable in the WAL.
func (v *MmapVectors) Flusher() func() error {
	return func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.deletedMmap.Flush(); err != nil {
			return vecerr.NewServiceErrorf("mmapstore: flush deleted map: %v", err)
		}
		return nil
	}
}

// Close unmaps and closes both underlying files.
func (v *MmapVectors) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var firstErr error
	if err := v.vectorsMmap.Unmap(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := v.vectorsFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := v.deletedMmap.Unmap(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := v.deletedFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
