package storage

import (
	"fmt"

	"github.com/appuploader/grandslam/account"
	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"
)

const snapshotsBucket = "snapshots"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BoltStore keeps every snapshot in one bolt database file.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(email string) (*account.Snapshot, error) {
	var snap *account.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(snapshotsBucket)).Get([]byte(key(email)))
		if raw == nil {
			return ErrNotFound
		}
		snap = new(account.Snapshot)
		return json.Unmarshal(raw, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *BoltStore) Save(snap account.Snapshot) error {
	if snap.Email == "" {
		return fmt.Errorf("snapshot has no email")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotsBucket)).Put([]byte(key(snap.Email)), raw)
	})
}

func (s *BoltStore) Delete(email string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotsBucket)).Delete([]byte(key(email)))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
