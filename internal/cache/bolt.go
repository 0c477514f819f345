package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var bucketEntries = []byte("cache_entries")

// BoltBackend stores entries as JSON values in a single bucket.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens or creates the bolt database at path.
func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, fmt.Errorf("open bolt db: %w", err)
		}
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrCorrupt, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// Load reads the bucket. Values that do not decode are skipped.
func (b *BoltBackend) Load(ctx context.Context) (map[string]Entry, error) {
	out := make(map[string]Entry)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			out[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read bucket: %w", ErrCorrupt, err)
	}
	return out, nil
}

// Put writes one value.
func (b *BoltBackend) Put(ctx context.Context, key string, entry Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), val)
	})
}

// Delete removes one value.
func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	})
}

// Clear drops and recreates the bucket.
func (b *BoltBackend) Clear(ctx context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	})
}

// Close closes the database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
