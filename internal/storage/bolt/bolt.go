package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/qrpay-labs/merchant-console/internal/crypto"
	"github.com/qrpay-labs/merchant-console/internal/model"
	"github.com/qrpay-labs/merchant-console/internal/storage"
	bolt "go.etcd.io/bbolt"
)

var _ storage.Store = (*Store)(nil)

var (
	bucketSession = []byte("session")
	bucketQRLog   = []byte("qr_logs")
	keyCredential = []byte("credential")
)

// Store is a BoltDB-backed Store implementation.
type Store struct {
	db *bolt.DB
	// sealKey encrypts the credential at rest when non-empty.
	sealKey []byte
}

// New initialises the Bolt store. A non-empty sealKey (16, 24 or 32 bytes) turns on
// encryption of the persisted credential.
func New(path string, sealKey []byte) (*Store, error) {
	switch len(sealKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("seal key must be 16, 24 or 32 bytes")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketQRLog)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, sealKey: sealKey}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadCredential returns the persisted credential.
func (s *Store) LoadCredential(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSession).Get(keyCredential); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return "", err
	}
	if raw == nil {
		return "", storage.ErrNotFound
	}
	if len(s.sealKey) == 0 {
		return string(raw), nil
	}
	plain, err := crypto.Open(string(raw), s.sealKey)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return string(plain), nil
}

// SaveCredential replaces the persisted credential.
func (s *Store) SaveCredential(ctx context.Context, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := credential
	if len(s.sealKey) > 0 {
		sealed, err := crypto.Seal([]byte(credential), s.sealKey)
		if err != nil {
			return fmt.Errorf("seal credential: %w", err)
		}
		value = sealed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyCredential, []byte(value))
	})
}

// DeleteCredential removes the persisted credential. Deleting an absent one is not an error.
func (s *Store) DeleteCredential(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyCredential)
	})
}

// AppendQRLog stores a generation attempt.
func (s *Store) AppendQRLog(ctx context.Context, log *model.QRLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketQRLog)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		log.ID = id
		payload, err := json.Marshal(log)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return bkt.Put(key, payload)
	})
}

// ListQRLogs returns all generation attempts in insertion order.
func (s *Store) ListQRLogs(ctx context.Context) ([]*model.QRLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var logs []*model.QRLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQRLog).ForEach(func(_, v []byte) error {
			var log model.QRLog
			if err := json.Unmarshal(v, &log); err != nil {
				return err
			}
			logs = append(logs, &log)
			return nil
		})
	})
	return logs, err
}
