package consensus

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/raft"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/vecton/pkg/vecerr"
)

var walBucket = []byte("wal")

// Entry is one consensus log entry: an opaque command payload plus the
// raft term it was proposed under. Type/Extensions/AppendedAt round-trip
// raft.Log's remaining fields so WAL can serve as raft's LogStore
// directly instead of duplicating raft-boltdb's own log table.
type Entry struct {
	Index      uint64
	Term       uint64
	Data       []byte
	Type       raft.LogType
	Extensions []byte
	AppendedAt int64
}

// WAL is the bbolt-backed append-only consensus log. Entries are keyed by
// index; appending at an index that already holds an entry overwrites it
// and everything after it is left untouched by append_entries itself
// (callers truncate the tail before appending on a term conflict, matching
// hashicorp/raft's own log-store contract).
type WAL struct {
	db *bolt.DB
}

// OpenWAL opens (creating if needed) the WAL database under dataDir.
func OpenWAL(dataDir string) (*WAL, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "consensus_wal.db"), 0o600, nil)
	if err != nil {
		return nil, vecerr.NewServiceErrorf("consensus: open wal: %v", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(walBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, vecerr.NewServiceErrorf("consensus: init wal bucket: %v", err)
	}
	return &WAL{db: db}, nil
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// AppendEntries writes entries, overwriting any existing entry at the same
// index. Entries must be contiguous and increasing; that invariant is the
// caller's responsibility (the raft layer never proposes out of order).
func (w *WAL) AppendEntries(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(walBucket)
		for _, e := range entries {
			raw, err := cbor.Marshal(e)
			if err != nil {
				return vecerr.NewServiceErrorf("consensus: encode wal entry %d: %v", e.Index, err)
			}
			if err := b.Put(indexKey(e.Index), raw); err != nil {
				return vecerr.NewServiceErrorf("consensus: put wal entry %d: %v", e.Index, err)
			}
		}
		return nil
	})
}

// Entry returns the single entry at index.
func (w *WAL) Entry(index uint64) (Entry, error) {
	var out Entry
	err := w.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(walBucket).Get(indexKey(index))
		if raw == nil {
			first, last, ferr := w.boundsLocked(tx)
			if ferr == nil && index < first {
				return &vecerr.Compacted{}
			}
			if ferr == nil && index > last {
				return &vecerr.Unavailable{}
			}
			return &vecerr.Unavailable{}
		}
		return cbor.Unmarshal(raw, &out)
	})
	return out, err
}

// Entries returns entries in [low, high). At least one entry is always
// returned when the range is non-empty and within bounds, even if maxSize
// would otherwise truncate the batch to zero:
// maxSize only bounds entries after the first.
func (w *WAL) Entries(low, high, maxSize uint64) ([]Entry, error) {
	if low >= high {
		return nil, nil
	}
	var out []Entry
	err := w.db.View(func(tx *bolt.Tx) error {
		first, last, err := w.boundsLocked(tx)
		if err != nil {
			return err
		}
		if low < first {
			return &vecerr.Compacted{}
		}
		if high > last+1 {
			return &vecerr.Unavailable{}
		}

		c := tx.Bucket(walBucket).Cursor()
		size := uint64(0)
		for k, v := c.Seek(indexKey(low)); k != nil; k, v = c.Next() {
			idx := binary.BigEndian.Uint64(k)
			if idx >= high {
				break
			}
			var e Entry
			if err := cbor.Unmarshal(v, &e); err != nil {
				return vecerr.NewServiceErrorf("consensus: decode wal entry %d: %v", idx, err)
			}
			if len(out) > 0 && size+uint64(len(v)) > maxSize {
				break
			}
			out = append(out, e)
			size += uint64(len(v))
		}
		return nil
	})
	return out, err
}

// FirstEntry returns the lowest-indexed entry still retained.
func (w *WAL) FirstEntry() (Entry, bool, error) {
	var out Entry
	found := false
	err := w.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(walBucket).Cursor().First()
		if k == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(v, &out)
	})
	return out, found, err
}

// LastEntry returns the highest-indexed entry.
func (w *WAL) LastEntry() (Entry, bool, error) {
	var out Entry
	found := false
	err := w.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(walBucket).Cursor().Last()
		if k == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(v, &out)
	})
	return out, found, err
}

func (w *WAL) boundsLocked(tx *bolt.Tx) (first, last uint64, err error) {
	c := tx.Bucket(walBucket).Cursor()
	fk, _ := c.First()
	if fk == nil {
		return 0, 0, &vecerr.Unavailable{}
	}
	lk, _ := c.Last()
	return binary.BigEndian.Uint64(fk), binary.BigEndian.Uint64(lk), nil
}

// Clear removes every entry up to and including upToIndex (log compaction
// after a snapshot).
func (w *WAL) Clear(upToIndex uint64) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(walBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) > upToIndex {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying bbolt database.
func (w *WAL) Close() error {
	return w.db.Close()
}

// FirstIndex satisfies raft.LogStore: 0 means the log is empty, matching
// raft's own convention for a store with nothing written yet.
func (w *WAL) FirstIndex() (uint64, error) {
	e, found, err := w.FirstEntry()
	if err != nil {
		if _, ok := err.(*vecerr.Unavailable); ok {
			return 0, nil
		}
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return e.Index, nil
}

// LastIndex satisfies raft.LogStore.
func (w *WAL) LastIndex() (uint64, error) {
	e, found, err := w.LastEntry()
	if err != nil {
		if _, ok := err.(*vecerr.Unavailable); ok {
			return 0, nil
		}
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return e.Index, nil
}

// GetLog satisfies raft.LogStore, filling log in place as raft expects.
// Both Compacted (index below the retained boundary) and Unavailable
// (index never written, or above the last one) collapse to raft's own
// not-found sentinel; raft has no separate "compacted" signal for reads.
func (w *WAL) GetLog(index uint64, log *raft.Log) error {
	e, err := w.Entry(index)
	if err != nil {
		switch err.(type) {
		case *vecerr.Unavailable, *vecerr.Compacted:
			return raft.ErrLogNotFound
		default:
			return err
		}
	}
	entryToLog(e, log)
	return nil
}

// StoreLog satisfies raft.LogStore.
func (w *WAL) StoreLog(log *raft.Log) error {
	return w.StoreLogs([]*raft.Log{log})
}

// StoreLogs satisfies raft.LogStore.
func (w *WAL) StoreLogs(logs []*raft.Log) error {
	entries := make([]Entry, len(logs))
	for i, l := range logs {
		entries[i] = logToEntry(l)
	}
	return w.AppendEntries(entries)
}

// DeleteRange satisfies raft.LogStore, deleting every entry with index in
// [min, max]. raft calls this both to trim compacted head entries after a
// snapshot and to drop a diverged tail before appending the replacement
// entries, so unlike Clear this must not touch anything below min.
func (w *WAL) DeleteRange(min, max uint64) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(walBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(indexKey(min)); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) > max {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func logToEntry(l *raft.Log) Entry {
	return Entry{
		Index:      l.Index,
		Term:       l.Term,
		Data:       l.Data,
		Type:       l.Type,
		Extensions: l.Extensions,
		AppendedAt: l.AppendedAt.UnixNano(),
	}
}

func entryToLog(e Entry, out *raft.Log) {
	out.Index = e.Index
	out.Term = e.Term
	out.Data = e.Data
	out.Type = e.Type
	out.Extensions = e.Extensions
	out.AppendedAt = time.Unix(0, e.AppendedAt)
}

var _ raft.LogStore = (*WAL)(nil)
