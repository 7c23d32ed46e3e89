package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"stage-command-center/internal/show"
)

var (
	bucketPresets = []byte("presets")
	bucketCues    = []byte("cues")
	bucketScript  = []byte("script")
	bucketThemes  = []byte("themes")
	bucketMeta    = []byte("meta")
)

// BoltStore implements Store using BoltDB. Each collection is kept in its own
// bucket keyed by position, so bucket order is list order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPresets, bucketCues, bucketScript, bucketThemes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func positionKey(i int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(i))
	return k[:]
}

// saveList replaces the whole bucket with items and marks it as saved.
func saveList[T any](db *bolt.DB, bucket []byte, items []T) error {
	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucket)
		if err != nil {
			return err
		}
		for i, it := range items {
			data, err := json.Marshal(it)
			if err != nil {
				return err
			}
			if err := b.Put(positionKey(i), data); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("bucket %q not found", bucketMeta)
		}
		return meta.Put(bucket, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

func loadList[T any](db *bolt.DB, bucket []byte) ([]T, error) {
	var items []T
	err := db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil || meta.Get(bucket) == nil {
			return fmt.Errorf("%s: %w", bucket, ErrNotFound)
		}
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		items = make([]T, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var it T
			if err := json.Unmarshal(v, &it); err != nil {
				return fmt.Errorf("%s[%d]: %w", bucket, binary.BigEndian.Uint64(k), err)
			}
			items = append(items, it)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *BoltStore) SavePresets(presets []show.Preset) error {
	return saveList(s.db, bucketPresets, presets)
}

func (s *BoltStore) LoadPresets() ([]show.Preset, error) {
	return loadList[show.Preset](s.db, bucketPresets)
}

func (s *BoltStore) SaveCues(cues []show.LightingCue) error {
	return saveList(s.db, bucketCues, cues)
}

func (s *BoltStore) LoadCues() ([]show.LightingCue, error) {
	return loadList[show.LightingCue](s.db, bucketCues)
}

func (s *BoltStore) SaveScript(items []show.ScriptItem) error {
	return saveList(s.db, bucketScript, items)
}

func (s *BoltStore) LoadScript() ([]show.ScriptItem, error) {
	return loadList[show.ScriptItem](s.db, bucketScript)
}

func (s *BoltStore) SaveThemes(themes []show.VisualizerTheme) error {
	return saveList(s.db, bucketThemes, themes)
}

func (s *BoltStore) LoadThemes() ([]show.VisualizerTheme, error) {
	return loadList[show.VisualizerTheme](s.db, bucketThemes)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
