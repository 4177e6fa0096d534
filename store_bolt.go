package oaccrefac

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketVerdicts = []byte("verdicts") // ID -> JSON record
	bucketMeta     = []byte("meta")
)

// BoltStore keeps a verdict baseline in a single bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// BoltStoreOptions configures NewBoltStore.
type BoltStoreOptions struct {
	Timeout  time.Duration // file lock timeout (default 5s)
	ReadOnly bool
}

func DefaultBoltStoreOptions() BoltStoreOptions {
	return BoltStoreOptions{Timeout: 5 * time.Second}
}

// NewBoltStore opens or creates the baseline file at dbPath.
func NewBoltStore(dbPath string, opts BoltStoreOptions) (*BoltStore, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: opts.Timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline %q: %w", dbPath, err)
	}
	if !opts.ReadOnly {
		err := db.Update(func(tx *bbolt.Tx) error {
			for _, name := range [][]byte{bucketVerdicts, bucketMeta} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("create bucket %q: %w", name, err)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize buckets: %w", err)
		}
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BoltStore) PutVerdicts(recs []VerdictRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVerdicts)
		latest := time.Time{}
		for _, r := range recs {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encoding verdict %q: %w", r.ID, err)
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return fmt.Errorf("storing verdict %q: %w", r.ID, err)
			}
			if r.RecordedAt.After(latest) {
				latest = r.RecordedAt
			}
		}
		if latest.IsZero() {
			return nil
		}
		stamp, _ := latest.MarshalText()
		return tx.Bucket(bucketMeta).Put(metaRecordedAt, stamp)
	})
}

func (s *BoltStore) GetVerdict(id string) (VerdictRecord, bool, error) {
	var rec VerdictRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVerdicts)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return rec, false, fmt.Errorf("reading verdict %q: %w", id, err)
	}
	return rec, found, nil
}

func (s *BoltStore) ListVerdicts() ([]VerdictRecord, error) {
	var out []VerdictRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVerdicts)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec VerdictRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding %q: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Stats() (StoreStats, error) {
	st := newStoreStats()
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketVerdicts); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				var rec VerdictRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("decoding %q: %w", k, err)
				}
				st.add(rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		if m := tx.Bucket(bucketMeta); m != nil {
			if stamp := m.Get(metaRecordedAt); stamp != nil {
				return st.LastRecorded.UnmarshalText(stamp)
			}
		}
		return nil
	})
	return st, err
}
