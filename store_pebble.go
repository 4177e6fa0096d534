package oaccrefac

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/pebble"
)

// Key prefixes give Pebble's flat key space logical buckets.
var (
	prefixVerdict = []byte("verdict:") // verdict:<fixture>#<n> -> JSON record
	prefixMeta    = []byte("meta:")    // meta:<key> -> value
)

var metaRecordedAt = []byte("recorded_at")

// PebbleStore keeps a verdict baseline in a Pebble LSM directory.
type PebbleStore struct {
	db *pebble.DB
}

// PebbleStoreOptions configures NewPebbleStore.
type PebbleStoreOptions struct {
	ReadOnly  bool
	CacheSize int64 // block cache bytes (default 8MB)
}

func DefaultPebbleStoreOptions() PebbleStoreOptions {
	return PebbleStoreOptions{CacheSize: 8 << 20}
}

// NewPebbleStore opens or creates the store directory at dbPath.
func NewPebbleStore(dbPath string, opts PebbleStoreOptions) (*PebbleStore, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = 8 << 20
	}
	if opts.ReadOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("baseline does not exist: %s", dbPath)
		}
	}
	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()
	db, err := pebble.Open(dbPath, &pebble.Options{Cache: cache, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline %q: %w", dbPath, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func prefixedKey(prefix []byte, key string) []byte {
	return append(append([]byte(nil), prefix...), key...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// PutVerdicts writes records and the recording time in one batch.
func (s *PebbleStore) PutVerdicts(recs []VerdictRecord) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	latest := time.Time{}
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding verdict %q: %w", r.ID, err)
		}
		if err := batch.Set(prefixedKey(prefixVerdict, r.ID), data, nil); err != nil {
			return fmt.Errorf("staging verdict %q: %w", r.ID, err)
		}
		if r.RecordedAt.After(latest) {
			latest = r.RecordedAt
		}
	}
	if !latest.IsZero() {
		stamp, _ := latest.MarshalText()
		if err := batch.Set(prefixedKey(prefixMeta, string(metaRecordedAt)), stamp, nil); err != nil {
			return fmt.Errorf("staging metadata: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing verdicts: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetVerdict(id string) (VerdictRecord, bool, error) {
	var rec VerdictRecord
	data, closer, err := s.db.Get(prefixedKey(prefixVerdict, id))
	if err == pebble.ErrNotFound {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("reading verdict %q: %w", id, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("decoding verdict %q: %w", id, err)
	}
	return rec, true, nil
}

// ListVerdicts returns every record in key order.
func (s *PebbleStore) ListVerdicts() ([]VerdictRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixVerdict,
		UpperBound: prefixUpperBound(prefixVerdict),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iterator creation failed: %w", err)
	}
	defer iter.Close()
	var out []VerdictRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec VerdictRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

func (s *PebbleStore) Stats() (StoreStats, error) {
	st := newStoreStats()
	recs, err := s.ListVerdicts()
	if err != nil {
		return st, err
	}
	for _, r := range recs {
		st.add(r)
	}
	data, closer, err := s.db.Get(prefixedKey(prefixMeta, string(metaRecordedAt)))
	switch {
	case err == nil:
		defer closer.Close()
		if err := st.LastRecorded.UnmarshalText(data); err != nil {
			return st, fmt.Errorf("decoding metadata: %w", err)
		}
	case err != pebble.ErrNotFound:
		return st, fmt.Errorf("reading metadata: %w", err)
	}
	return st, nil
}
