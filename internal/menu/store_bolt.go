package menu

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore implements the Store interface using an embedded BoltDB file
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the BoltDB file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// EnsureSchema creates the menu bucket if it doesn't exist
func (b *BoltStore) EnsureSchema(ctx context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tableName))
		return err
	})
	if err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	return nil
}

// WithSession runs fn against the open database. Bolt has a single handle
// and serialises writers itself, so there is nothing to acquire.
func (b *BoltStore) WithSession(ctx context.Context, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&boltSession{db: b.db})
}

// Close closes the database file
func (b *BoltStore) Close() error {
	return b.db.Close()
}

type boltSession struct {
	db *bbolt.DB
}

// InsertAll stores the records under big-endian sequence keys so that
// cursor order is insertion order
func (s *boltSession) InsertAll(ctx context.Context, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return []Record{}, nil
	}

	inserted := make([]Record, 0, len(records))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tableName))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", tableName)
		}
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating id: %w", err)
			}
			record.ID = int64(seq)
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("marshaling record: %w", err)
			}
			if err := bucket.Put(itob(seq), data); err != nil {
				return err
			}
			inserted = append(inserted, record)
		}
		return nil
	})
	if err != nil {
		return nil, storeWriteError(err)
	}
	return inserted, nil
}

// ListAll returns all records in key order
func (s *boltSession) ListAll(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tableName))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", tableName)
		}
		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
