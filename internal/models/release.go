package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cfilipov/containerdeck/internal/db"
)

// ReleaseStore keeps the most recent update check result per product.
// An in-memory cache (atomic pointer) avoids reading BoltDB on every broadcast.
type ReleaseStore struct {
	db    *bolt.DB
	cache atomic.Pointer[[]ReleaseRecord] // lazily rebuilt, invalidated on writes
}

func NewReleaseStore(database *bolt.DB) *ReleaseStore {
	return &ReleaseStore{db: database}
}

// ReleaseRecord is one stored check result, keyed by Product.
type ReleaseRecord struct {
	Product     string `json:"product"`
	Repo        string `json:"repo"`
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	Available   bool   `json:"available"`
	LastChecked int64  `json:"lastChecked"`
}

// Upsert writes rec, stamping LastChecked when it is zero.
func (s *ReleaseStore) Upsert(rec ReleaseRecord) error {
	if rec.LastChecked == 0 {
		rec.LastChecked = time.Now().Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal release %q: %w", rec.Product, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketReleases).Put([]byte(rec.Product), data)
	})
	if err != nil {
		return fmt.Errorf("upsert release %q: %w", rec.Product, err)
	}
	s.cache.Store(nil)
	return nil
}

// All returns every stored record sorted by product. Callers must not mutate
// the returned slice; it is shared with the cache.
func (s *ReleaseStore) All() ([]ReleaseRecord, error) {
	if cached := s.cache.Load(); cached != nil {
		return *cached, nil
	}

	recs := []ReleaseRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketReleases).ForEach(func(k, v []byte) error {
			var rec ReleaseRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal release %q: %w", string(k), err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Product < recs[j].Product })
	s.cache.Store(&recs)
	return recs, nil
}
