// Package usage persists per-provider search counters in a small bbolt
// database next to the token store. Counters survive restarts and feed the
// status command.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "provider_usage"

// ProviderStats aggregates the lifetime counters of one provider.
type ProviderStats struct {
	Searches   int64  `json:"searches"`
	Fallbacks  int64  `json:"fallbacks"`
	Failures   int64  `json:"failures"`
	LastSearch string `json:"last_search,omitempty"`
}

// Recorder owns the usage database. All methods are safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewRecorder creates a recorder backed by the given file path. An empty path
// places usage.bolt next to the user's config directory.
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		dir, errDir := os.UserConfigDir()
		if errDir != nil {
			return nil, fmt.Errorf("usage recorder: resolve config dir: %w", errDir)
		}
		path = filepath.Join(dir, "grounded-search-mcp", "usage.bolt")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("usage recorder: create directory: %w", err)
	}
	return &Recorder{path: path, now: time.Now}, nil
}

// RecordSearch bumps the search counter for a provider, marking whether the
// call was served as a fallback.
func (r *Recorder) RecordSearch(provider string, fallback bool) {
	r.update(provider, func(stats *ProviderStats) {
		stats.Searches++
		if fallback {
			stats.Fallbacks++
		}
		stats.LastSearch = r.now().UTC().Format(time.RFC3339)
	})
}

// RecordFailure bumps the failure counter for a provider.
func (r *Recorder) RecordFailure(provider string) {
	r.update(provider, func(stats *ProviderStats) {
		stats.Failures++
	})
}

// Stats returns the counters for every provider that has recorded activity.
func (r *Recorder) Stats() (map[string]ProviderStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, errOpen := bolt.Open(r.path, 0o600, &bolt.Options{Timeout: time.Second})
	if errOpen != nil {
		return nil, fmt.Errorf("usage recorder: open database: %w", errOpen)
	}
	defer func() {
		_ = db.Close()
	}()

	out := map[string]ProviderStats{}
	errView := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var stats ProviderStats
			if e := json.Unmarshal(v, &stats); e != nil {
				// Skip malformed entries instead of failing the whole load
				return nil
			}
			out[string(k)] = stats
			return nil
		})
	})
	if errView != nil {
		return nil, fmt.Errorf("usage recorder: read counters: %w", errView)
	}
	return out, nil
}

// update applies fn to the stored counters of one provider. Accounting never
// fails a search, so errors are logged and swallowed.
func (r *Recorder) update(provider string, fn func(*ProviderStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, errOpen := bolt.Open(r.path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if errOpen != nil {
		log.Warnf("usage recorder: open database: %v", errOpen)
		return
	}
	defer func() {
		_ = db.Close()
	}()

	errUpdate := db.Update(func(tx *bolt.Tx) error {
		b, errCreateBucket := tx.CreateBucketIfNotExists([]byte(bucketName))
		if errCreateBucket != nil {
			return errCreateBucket
		}
		var stats ProviderStats
		if v := b.Get([]byte(provider)); len(v) > 0 {
			if e := json.Unmarshal(v, &stats); e != nil {
				stats = ProviderStats{}
			}
		}
		fn(&stats)
		enc, errMarshal := json.Marshal(stats)
		if errMarshal != nil {
			return errMarshal
		}
		return b.Put([]byte(provider), enc)
	})
	if errUpdate != nil {
		log.Warnf("usage recorder: write counters: %v", errUpdate)
	}
}
