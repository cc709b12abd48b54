package netdb

import (
	"encoding/binary"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

// MaxRecords is the number of journal records kept, older ones are dropped.
const MaxRecords = 1000

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic("netdb: failed to create CBOR encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic("netdb: failed to create CBOR decoder: " + err.Error())
	}
}

// RecordNetwork is the journaled form of a network descriptor.
type RecordNetwork struct {
	Transport string `cbor:"1,keyasint" json:"transport"`
	Connected bool   `cbor:"2,keyasint" json:"connected"`
	Subtype   int    `cbor:"3,keyasint,omitempty" json:"subtype"`
	Extra     string `cbor:"4,keyasint,omitempty" json:"extra"`
}

// Record is a journaled connectivity event.
type Record struct {
	Sequence  uint64         `cbor:"-" json:"sequence"`
	ID        string         `cbor:"1,keyasint" json:"id"`
	Kind      string         `cbor:"2,keyasint" json:"kind"`
	Transport string         `cbor:"3,keyasint,omitempty" json:"transport,omitempty"`
	Current   *RecordNetwork `cbor:"4,keyasint,omitempty" json:"current,omitempty"`
	Previous  *RecordNetwork `cbor:"5,keyasint,omitempty" json:"previous,omitempty"`
	Time      time.Time      `cbor:"6,keyasint" json:"time"`
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// AppendEvent journals the record and drops everything older than the
// newest MaxRecords records.
func (db *DB) AppendEvent(record *Record) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(journalBucket)
		if bucket == nil {
			return errors.New("journal bucket missing")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return errors.Errorf("could not get next sequence: %v", err)
		}

		payload, err := encMode.Marshal(record)
		if err != nil {
			return errors.Errorf("could not encode record: %v", err)
		}

		err = bucket.Put(sequenceKey(seq), payload)
		if err != nil {
			return errors.Errorf("could not put record: %v", err)
		}

		record.Sequence = seq

		if seq <= MaxRecords {
			return nil
		}

		cutoff := seq - MaxRecords
		c := bucket.Cursor()

		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return errors.Errorf("could not trim journal: %v", err)
			}
		}

		return nil
	})
}

// Events returns up to limit records, newest first. A limit of zero or
// less returns all of them.
func (db *DB) Events(limit int) ([]*Record, error) {
	var records []*Record

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(journalBucket)
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			record := &Record{}

			if err := decMode.Unmarshal(v, record); err != nil {
				return errors.Errorf("could not decode record %x: %v", k, err)
			}

			record.Sequence = binary.BigEndian.Uint64(k)
			records = append(records, record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
