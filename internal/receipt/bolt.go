package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "receipts"

// BoltHistory implements the History interface using BoltDB
type BoltHistory struct {
	db *bbolt.DB
}

// NewBoltHistory opens (or creates) a BoltDB file
func NewBoltHistory(path string) (*BoltHistory, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltHistory{db: db}, nil
}

// positionKey sorts lexically in collection order
func positionKey(i int) []byte {
	return []byte(fmt.Sprintf("%010d", i))
}

// LoadAll returns every receipt in stored order
func (b *BoltHistory) LoadAll() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt %s: %w", k, err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// ReplaceAll drops the bucket and writes the collection in one transaction
func (b *BoltHistory) ReplaceAll(receipts []*Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("dropping bucket: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		for i, receipt := range receipts {
			data, err := json.Marshal(receipt)
			if err != nil {
				return fmt.Errorf("marshaling receipt: %w", err)
			}
			if err := bucket.Put(positionKey(i), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltHistory) Close() error {
	return b.db.Close()
}
