package catalog

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/cuemby/vecton/pkg/segment/mmapstore"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// shardDir is <storageRoot>/<collection>/<shardID>, the directory one
// local replica of that shard lives under (segment subdirectories nest
// below it, e.g. ".../0" for the first segment).
func shardDir(storageRoot, collection string, shardID types.ShardID) string {
	return filepath.Join(storageRoot, collection, strconv.FormatUint(uint64(shardID), 10))
}

// materializeShard creates the directory tree for one local shard replica
// and its first segment. A zero dim means the collection has no fixed
// vector width yet (segment.Memory infers it from the first write), so
// only the directory is created in that case; the vectors/deleted mmap
// files are left for the segment layer to create on first use.
func materializeShard(storageRoot, collection string, shardID types.ShardID, dim uint64) error {
	segDir := filepath.Join(shardDir(storageRoot, collection, shardID), "0")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return vecerr.NewServiceErrorf("catalog: create shard directory %s: %v", segDir, err)
	}
	if dim == 0 {
		return nil
	}
	store, err := mmapstore.Open(filepath.Join(segDir, "vectors.mmap"), filepath.Join(segDir, "deleted.mmap"), int(dim))
	if err != nil {
		return err
	}
	return store.Close()
}

// removeCollectionDir tears down every local replica's on-disk state for
// collection. Idempotent: an already-absent directory is not an error,
// matching rm -rf.
func removeCollectionDir(storageRoot, collection string) error {
	if err := os.RemoveAll(filepath.Join(storageRoot, collection)); err != nil {
		return vecerr.NewServiceErrorf("catalog: remove collection directory for %q: %v", collection, err)
	}
	return nil
}
