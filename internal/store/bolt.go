package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/punchamoorthee/inapppay/internal/domain"
)

const noticeBucket = "notices"

// BoltStore keeps notices in a single BoltDB file. It is used for local
// development when no Postgres DSN is configured.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path and ensures the
// notices bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(noticeBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveNotice writes n under its sequence id. A later attempt of the same
// sequence overwrites the outcome but keeps CreatedAt.
func (s *BoltStore) SaveNotice(_ context.Context, n domain.Notice) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(noticeBucket))

		now := time.Now().UTC()
		n.CreatedAt = now
		if existing := b.Get([]byte(n.ID)); existing != nil {
			var prev domain.Notice
			if err := json.Unmarshal(existing, &prev); err != nil {
				return err
			}
			n.CreatedAt = prev.CreatedAt
		}
		n.UpdatedAt = now

		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return b.Put([]byte(n.ID), data)
	})
}

// ListNotices scans the bucket for one transaction's notices, oldest first.
func (s *BoltStore) ListNotices(_ context.Context, transactionUUID string) ([]domain.Notice, error) {
	notices := []domain.Notice{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(noticeBucket))
		return b.ForEach(func(k, v []byte) error {
			var n domain.Notice
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.TransactionUUID == transactionUUID {
				notices = append(notices, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(notices, func(i, j int) bool {
		return notices[i].CreatedAt.Before(notices[j].CreatedAt)
	})
	return notices, nil
}
