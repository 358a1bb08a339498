package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
)

const (
	articleBucket    = "articles"
	sourceBucket     = "sources"
	expiryValueBytes = 8
)

// boltStore implements an ArticleStore backed by BoltDB. Saved articles are
// kept indefinitely; source fingerprints carry a TTL so a re-shared link can
// be ingested again after it lapses.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	sourceTTL       time.Duration
	cleanupInterval time.Duration
}

// openBolt initializes a BoltDB-backed ArticleStore.
func openBolt(path string, opts Options) (ArticleStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{articleBucket, sourceBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	store := &boltStore{
		db:              db,
		sourceTTL:       opts.SourceTTL,
		cleanupInterval: opts.CleanupInterval,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SaveArticle persists a saved article record keyed by its ID.
func (b *boltStore) SaveArticle(record *domain.SavedArticle) error {
	if b == nil || b.db == nil {
		return nil
	}
	if record == nil || record.ID == "" {
		return fmt.Errorf("saved article requires an ID")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode article %s: %w", record.ID, err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		return bucket.Put([]byte(record.ID), payload)
	})
}

// GetArticle loads a saved article by ID.
func (b *boltStore) GetArticle(id string) (*domain.SavedArticle, error) {
	if b == nil || b.db == nil {
		return nil, ErrNotFound
	}

	var record *domain.SavedArticle
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		value := bucket.Get([]byte(id))
		if value == nil {
			return ErrNotFound
		}
		record = &domain.SavedArticle{}
		return json.Unmarshal(value, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListArticles returns every saved article in key order.
func (b *boltStore) ListArticles() ([]*domain.SavedArticle, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	var records []*domain.SavedArticle
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		return bucket.ForEach(func(_, v []byte) error {
			record := &domain.SavedArticle{}
			if err := json.Unmarshal(v, record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SeenSource checks whether a source fingerprint was ingested within the TTL.
func (b *boltStore) SeenSource(fingerprint string) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}

	if err := b.maybeCleanupExpired(time.Now()); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sourceBucket))
		if bucket == nil {
			return fmt.Errorf("source bucket missing")
		}

		key := []byte(fingerprint)
		value := bucket.Get(key)
		if value == nil {
			exists = false
			return nil
		}

		expiry, ok := decodeExpiry(value)
		if !ok || !expiry.After(time.Now()) {
			exists = false
			return bucket.Delete(key)
		}

		exists = true
		return nil
	})
	return exists, err
}

// MarkSource records a source fingerprint as ingested.
func (b *boltStore) MarkSource(fingerprint string) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sourceBucket))
		if bucket == nil {
			return fmt.Errorf("source bucket missing")
		}
		buf := make([]byte, expiryValueBytes)
		binary.BigEndian.PutUint64(buf, uint64(now.Add(b.sourceTTL).Unix()))
		return bucket.Put([]byte(fingerprint), buf)
	})
}

// maybeCleanupExpired removes expired source fingerprints on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sourceBucket))
		if bucket == nil {
			return fmt.Errorf("source bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, ok := decodeExpiry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
