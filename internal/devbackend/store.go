package devbackend

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers   = []byte("users")
	bucketDevices = []byte("devices")

	// ErrNotFound indicates the requested record does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrExists indicates a username is already taken.
	ErrExists = errors.New("already exists")
	// ErrDuplicateCode indicates the merchant already has a device with the application code.
	ErrDuplicateCode = errors.New("duplicate application code")
)

// User is a registered merchant.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CompanyName  string    `json:"companyName"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Device is a merchant's stored credential set.
type Device struct {
	ID              uint64    `json:"id"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"`
	ApplicationCode string    `json:"applicationCode"`
	SecretKey       string    `json:"secretKey"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Store is the dev backend's BoltDB persistence.
type Store struct {
	db *bolt.DB
}

// OpenStore initialises the Bolt store.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketUsers); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketDevices)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser stores a new merchant; the username must be unused.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketUsers)
		key := []byte(strings.ToLower(user.Username))
		if bkt.Get(key) != nil {
			return ErrExists
		}
		return bkt.Put(key, payload)
	})
}

// GetUser fetches a merchant by username.
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user *User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUsers).Get([]byte(strings.ToLower(username)))
		if v == nil {
			return ErrNotFound
		}
		user = &User{}
		return json.Unmarshal(v, user)
	})
	return user, err
}

// ListDevices returns the owner's devices ordered by id.
func (s *Store) ListDevices(ctx context.Context, owner string) ([]*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		devices, err = ownedDevices(tx, owner)
		return err
	})
	return devices, err
}

// CreateDevice assigns an id and stores the device.
func (s *Store) CreateDevice(ctx context.Context, device *Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := checkCode(tx, device.Owner, device.ApplicationCode, 0); err != nil {
			return err
		}
		bkt := tx.Bucket(bucketDevices)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		device.ID = id
		return putDevice(bkt, device)
	})
}

// GetDevice fetches one of the owner's devices.
func (s *Store) GetDevice(ctx context.Context, owner string, id uint64) (*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var device *Device
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		device, err = getDevice(tx, owner, id)
		return err
	})
	return device, err
}

// ReplaceDevice overwrites name, application code and secret key of an owned device.
func (s *Store) ReplaceDevice(ctx context.Context, owner string, id uint64, name, code, secret string) (*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var device *Device
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		device, err = getDevice(tx, owner, id)
		if err != nil {
			return err
		}
		if err := checkCode(tx, owner, code, id); err != nil {
			return err
		}
		device.Name = name
		device.ApplicationCode = code
		device.SecretKey = secret
		device.UpdatedAt = time.Now().UTC()
		return putDevice(tx.Bucket(bucketDevices), device)
	})
	return device, err
}

// DeleteDevice removes an owned device.
func (s *Store) DeleteDevice(ctx context.Context, owner string, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getDevice(tx, owner, id); err != nil {
			return err
		}
		return tx.Bucket(bucketDevices).Delete(idKey(id))
	})
}

func ownedDevices(tx *bolt.Tx, owner string) ([]*Device, error) {
	var devices []*Device
	err := tx.Bucket(bucketDevices).ForEach(func(_, v []byte) error {
		var device Device
		if err := json.Unmarshal(v, &device); err != nil {
			return err
		}
		if strings.EqualFold(device.Owner, owner) {
			devices = append(devices, &device)
		}
		return nil
	})
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, err
}

func getDevice(tx *bolt.Tx, owner string, id uint64) (*Device, error) {
	v := tx.Bucket(bucketDevices).Get(idKey(id))
	if v == nil {
		return nil, ErrNotFound
	}
	var device Device
	if err := json.Unmarshal(v, &device); err != nil {
		return nil, err
	}
	if !strings.EqualFold(device.Owner, owner) {
		return nil, ErrNotFound
	}
	return &device, nil
}

func checkCode(tx *bolt.Tx, owner, code string, except uint64) error {
	devices, err := ownedDevices(tx, owner)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.ID != except && d.ApplicationCode == code {
			return ErrDuplicateCode
		}
	}
	return nil
}

func putDevice(bkt *bolt.Bucket, device *Device) error {
	payload, err := json.Marshal(device)
	if err != nil {
		return err
	}
	return bkt.Put(idKey(device.ID), payload)
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
