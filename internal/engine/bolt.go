package engine

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/nicolagi/kvs/internal/kverr"
	bolt "go.etcd.io/bbolt"
)

const boltFileName = "bolt.store"

var boltBucket = []byte("kvs")

var _ Engine = (*BoltStore)(nil)

// BoltStore keeps the mappings in an embedded bbolt database. It honors the
// same contract as the log engine, including KeyNotFound on removing an
// absent key.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, logStoreDirPerm); err != nil {
		return nil, kverr.Wrap(err, kverr.IO)
	}
	db, err := bolt.Open(filepath.Join(dir, boltFileName), logStoreFilePerm, nil)
	if err != nil {
		return nil, kverr.Wrap(err, kverr.Engine)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, kverr.Wrap(err, kverr.Engine)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	return kverr.Wrap(err, kverr.Engine)
}

func (s *BoltStore) Get(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		if !utf8.Valid(v) {
			return kverr.Newf(kverr.Encoding, "value for %q is not UTF-8", key)
		}
		value = string(v)
		found = true
		return nil
	})
	if err != nil {
		if kverr.IsKind(err, kverr.Encoding) {
			return "", false, err
		}
		return "", false, kverr.Wrap(err, kverr.Engine)
	}
	return value, found, nil
}

func (s *BoltStore) Remove(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b.Get([]byte(key)) == nil {
			return kverr.Newf(kverr.KeyNotFound, "%q", key)
		}
		return b.Delete([]byte(key))
	})
	if err != nil && !kverr.IsKind(err, kverr.KeyNotFound) {
		return kverr.Wrap(err, kverr.Engine)
	}
	return err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
