// Package boltstore persists agent state in a bbolt database.
package boltstore

import (
	"fmt"
	"time"

	"github.com/utxopaychan/paychan/agent"
	"go.etcd.io/bbolt"
)

// channelBucket stores funding ids and channel snapshots keyed by the
// channel's keys.
var channelBucket = []byte("channel")

type Store struct {
	db *bbolt.DB
}

var _ agent.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(channelBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (string, bool, error) {
	var v []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		// The returned bytes are only valid for the life of the tx.
		if b := tx.Bucket(channelBucket).Get([]byte(key)); b != nil {
			v = append([]byte{}, b...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("getting %s: %w", key, err)
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (s *Store) Put(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}
