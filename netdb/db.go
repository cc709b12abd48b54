// Package netdb persists the last join and the journal of connectivity
// events in a bbolt database. Credentials are never stored.
package netdb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

const (
	dbName           = "netmond.db"
	dbFilePermission = 0600
	dirPermission    = 0700
)

var (
	settingsBucket = []byte("settings")
	journalBucket  = []byte("journal")
)

type DB struct {
	*bbolt.DB
	path string
}

// Open opens or creates the database in the given directory.
func Open(dir string) (*DB, error) {
	err := os.MkdirAll(dir, dirPermission)
	if err != nil {
		return nil, errors.Errorf("could not create data dir: %v", err)
	}

	path := filepath.Join(dir, dbName)

	bdb, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("could not open %v: %v", path, err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{settingsBucket, journalBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Errorf("could not create buckets: %v", err)
	}

	return &DB{DB: bdb, path: path}, nil
}

func (db *DB) Path() string {
	return db.path
}
