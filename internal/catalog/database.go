package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/nutriscan/internal/nutrition"
)

const (
	productBucketName = "products"
	usageBucketName   = "usage"
)

// Usage is one user's call count for one quota kind on one day
type Usage struct {
	UserID    string              `json:"user_id"`
	Kind      nutrition.QuotaKind `json:"kind"`
	Day       string              `json:"day"`
	Count     int                 `json:"count"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// DB defines the interface for catalog and quota storage
type DB interface {
	// SaveProduct stores a product under its code, replacing any earlier entry
	SaveProduct(product *nutrition.Product) error

	// GetProduct retrieves a product by code. A missing code wraps nutrition.ErrNotFound.
	GetProduct(code nutrition.Code) (*nutrition.Product, error)

	// ListProducts returns every catalog product
	ListProducts() ([]*nutrition.Product, error)

	// Usage returns the count recorded for a user, kind and day
	Usage(userID string, kind nutrition.QuotaKind, day string) (int, error)

	// IncrementUsage adds one to the count and returns the new value
	IncrementUsage(userID string, kind nutrition.QuotaKind, day string, now time.Time) (int, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(productBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(usageBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveProduct saves a product to the catalog
func (b *BoltDB) SaveProduct(product *nutrition.Product) error {
	if product.Code == "" {
		return fmt.Errorf("product has no code")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productBucketName))
		data, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("marshaling product: %w", err)
		}
		return bucket.Put([]byte(product.Code), data)
	})
}

// GetProduct retrieves a product by code
func (b *BoltDB) GetProduct(code nutrition.Code) (*nutrition.Product, error) {
	var product *nutrition.Product
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productBucketName))
		data := bucket.Get([]byte(code))
		if data == nil {
			return fmt.Errorf("%w: %s", nutrition.ErrNotFound, code)
		}
		return json.Unmarshal(data, &product)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ListProducts returns all products
func (b *BoltDB) ListProducts() ([]*nutrition.Product, error) {
	products := make([]*nutrition.Product, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var product nutrition.Product
			if err := json.Unmarshal(v, &product); err != nil {
				return fmt.Errorf("unmarshaling product: %w", err)
			}
			products = append(products, &product)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Usage returns the recorded count, zero when nothing was recorded
func (b *BoltDB) Usage(userID string, kind nutrition.QuotaKind, day string) (int, error) {
	var usage Usage
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usageBucketName))
		data := bucket.Get(usageKey(userID, kind, day))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &usage)
	})
	if err != nil {
		return 0, fmt.Errorf("reading usage: %w", err)
	}
	return usage.Count, nil
}

// IncrementUsage bumps the count in a single write transaction
func (b *BoltDB) IncrementUsage(userID string, kind nutrition.QuotaKind, day string, now time.Time) (int, error) {
	var count int
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usageBucketName))
		key := usageKey(userID, kind, day)

		usage := Usage{UserID: userID, Kind: kind, Day: day}
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &usage); err != nil {
				return fmt.Errorf("unmarshaling usage: %w", err)
			}
		}
		usage.Count++
		usage.UpdatedAt = now
		count = usage.Count

		data, err := json.Marshal(usage)
		if err != nil {
			return fmt.Errorf("marshaling usage: %w", err)
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func usageKey(userID string, kind nutrition.QuotaKind, day string) []byte {
	return []byte(userID + "|" + string(kind) + "|" + day)
}
