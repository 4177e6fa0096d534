package oaccrefac

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// -- Verdict Baselines --

// VerdictRecord is the stored outcome of one fixture marker.
type VerdictRecord struct {
	ID          string    `json:"id"` // fixture#index
	Kind        Kind      `json:"kind"`
	Marker      string    `json:"marker"`
	Admissible  bool      `json:"admissible"`
	Code        string    `json:"code,omitempty"`
	Range       string    `json:"range"`
	RewriteHash string    `json:"rewriteHash,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// RecordFromCase captures a case's verdict. Cases that errored before
// producing a result are not recordable.
func RecordFromCase(c *CaseResult, now time.Time) (VerdictRecord, bool) {
	if c.Result == nil {
		return VerdictRecord{}, false
	}
	rec := VerdictRecord{
		ID:         c.ID(),
		Kind:       c.Result.Kind,
		Marker:     c.Marker.Text,
		Admissible: c.Result.Admissible,
		Range:      c.Result.Range.String(),
		RecordedAt: now.UTC(),
	}
	if c.Result.Reason != nil {
		rec.Code = c.Result.Reason.Code()
	}
	if c.Result.Rewrite != "" {
		sum := sha256.Sum256([]byte(c.Result.Rewrite))
		rec.RewriteHash = hex.EncodeToString(sum[:8])
	}
	return rec, true
}

// sameVerdict ignores bookkeeping fields.
func sameVerdict(a, b VerdictRecord) bool {
	return a.Admissible == b.Admissible && a.Code == b.Code && a.Range == b.Range && a.RewriteHash == b.RewriteHash
}

// VerdictStore persists baselines. Implementations serialise their writes.
type VerdictStore interface {
	PutVerdicts(recs []VerdictRecord) error
	GetVerdict(id string) (VerdictRecord, bool, error)
	ListVerdicts() ([]VerdictRecord, error)
	Stats() (StoreStats, error)
	Close() error
}

// StoreStats summarises a baseline.
type StoreStats struct {
	Total        int            `json:"total"`
	Admissible   int            `json:"admissible"`
	Rejected     int            `json:"rejected"`
	ByKind       map[Kind]int   `json:"byKind"`
	ByCode       map[string]int `json:"byCode"`
	LastRecorded time.Time      `json:"lastRecorded"`
}

func newStoreStats() StoreStats {
	return StoreStats{ByKind: make(map[Kind]int), ByCode: make(map[string]int)}
}

func (s *StoreStats) add(r VerdictRecord) {
	s.Total++
	if r.Admissible {
		s.Admissible++
	} else {
		s.Rejected++
		s.ByCode[r.Code]++
	}
	s.ByKind[r.Kind]++
}

// Backend selects a store implementation.
type Backend string

const (
	BackendPebble Backend = "pebble"
	BackendBolt   Backend = "bolt"
)

// InferBackend picks bolt for single-file paths (.db, .bolt) and pebble
// for anything else, which pebble treats as a directory.
func InferBackend(path string) Backend {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".bolt":
		return BackendBolt
	}
	return BackendPebble
}

// OpenStore opens the baseline at path. An empty backend is inferred.
func OpenStore(path string, backend Backend, readOnly bool) (VerdictStore, error) {
	if backend == "" {
		backend = InferBackend(path)
	}
	switch backend {
	case BackendPebble:
		opts := DefaultPebbleStoreOptions()
		opts.ReadOnly = readOnly
		return NewPebbleStore(path, opts)
	case BackendBolt:
		opts := DefaultBoltStoreOptions()
		opts.ReadOnly = readOnly
		return NewBoltStore(path, opts)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}

// FlipKind classifies a difference from the baseline.
type FlipKind string

const (
	FlipAdded   FlipKind = "added"
	FlipRemoved FlipKind = "removed"
	FlipChanged FlipKind = "changed"
)

// Flip is one case whose verdict differs from the baseline.
type Flip struct {
	ID   string         `json:"id"`
	Kind FlipKind       `json:"kind"`
	Old  *VerdictRecord `json:"old,omitempty"`
	New  *VerdictRecord `json:"new,omitempty"`
}

func (f Flip) String() string {
	describe := func(r *VerdictRecord) string {
		if r.Admissible {
			return "admissible"
		}
		return "rejected " + r.Code
	}
	switch f.Kind {
	case FlipAdded:
		return fmt.Sprintf("+ %s: %s", f.ID, describe(f.New))
	case FlipRemoved:
		return fmt.Sprintf("- %s: was %s", f.ID, describe(f.Old))
	}
	return fmt.Sprintf("~ %s: %s -> %s", f.ID, describe(f.Old), describe(f.New))
}

// DiffBaseline compares current verdicts with the stored baseline, sorted
// by case ID.
func DiffBaseline(s VerdictStore, current []VerdictRecord) ([]Flip, error) {
	old, err := s.ListVerdicts()
	if err != nil {
		return nil, fmt.Errorf("reading baseline: %w", err)
	}
	byID := make(map[string]VerdictRecord, len(old))
	for _, r := range old {
		byID[r.ID] = r
	}
	var flips []Flip
	for i := range current {
		cur := current[i]
		prev, ok := byID[cur.ID]
		delete(byID, cur.ID)
		switch {
		case !ok:
			flips = append(flips, Flip{ID: cur.ID, Kind: FlipAdded, New: &cur})
		case !sameVerdict(prev, cur):
			flips = append(flips, Flip{ID: cur.ID, Kind: FlipChanged, Old: &prev, New: &cur})
		}
	}
	for id, prev := range byID {
		flips = append(flips, Flip{ID: id, Kind: FlipRemoved, Old: &prev})
	}
	sort.Slice(flips, func(i, j int) bool { return flips[i].ID < flips[j].ID })
	return flips, nil
}
