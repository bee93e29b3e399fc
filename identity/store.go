package identity

import (
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
)

// userRow is the persisted form of a User.
type userRow struct {
	UserID         [block.IDSize]byte
	Devices        []Device
	UserPublicKeys []UserPublicKeyEntry
}

func (r userRow) RowKey() string { return hex.EncodeToString(r.UserID[:]) }

// deviceIndexRow maps a device id to its owning user id, so the verifier
// can resolve an "author" field (a device-creation block hash) back to a
// user without scanning every user row.
type deviceIndexRow struct {
	DeviceID [block.IDSize]byte
	UserID   [block.IDSize]byte
}

func (r deviceIndexRow) RowKey() string { return hex.EncodeToString(r.DeviceID[:]) }

// Store is the users table, plus its device_id -> user_id secondary
// index.
type Store struct {
	mu      sync.RWMutex
	users   *localstore.Table[userRow]
	devices *localstore.Table[deviceIndexRow]
}

// NewStore opens the users table (and its device index) within kv.
func NewStore(kv *versioned.KV) *Store {
	return &Store{
		users:   localstore.NewTable[userRow](kv, "users"),
		devices: localstore.NewTable[deviceIndexRow](kv, "device_index"),
	}
}

func userKey(id [block.IDSize]byte) string   { return hex.EncodeToString(id[:]) }
func deviceKey(id [block.IDSize]byte) string { return hex.EncodeToString(id[:]) }

// GetUser fetches one user by id.
func (s *Store) GetUser(userID [block.IDSize]byte) (*User, error) {
	row, err := s.users.Get(userKey(userID))
	if err != nil {
		return nil, err
	}
	return &User{UserID: row.UserID, Devices: row.Devices, UserPublicKeys: row.UserPublicKeys}, nil
}

// PutUser upserts a full user record.
func (s *Store) PutUser(u *User) error {
	return s.users.Put(userRow{UserID: u.UserID, Devices: u.Devices, UserPublicKeys: u.UserPublicKeys})
}

// GetUserIDForDevice resolves a device id to its owning user id via the
// secondary index built as device-creation blocks are applied.
func (s *Store) GetUserIDForDevice(deviceID [block.IDSize]byte) ([block.IDSize]byte, error) {
	row, err := s.devices.Get(deviceKey(deviceID))
	if err != nil {
		return [block.IDSize]byte{}, err
	}
	return row.UserID, nil
}

// GetDevice resolves a device id directly to its Device record.
func (s *Store) GetDevice(deviceID [block.IDSize]byte) (*Device, error) {
	userID, err := s.GetUserIDForDevice(deviceID)
	if err != nil {
		return nil, err
	}
	u, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	d := u.DeviceByID(deviceID)
	if d == nil {
		return nil, errors.Errorf("identity: device %x indexed but missing from user %x", deviceID, userID)
	}
	return d, nil
}

// applyMutation runs fn against the user's current state (creating an
// empty User if none exists yet) and persists the result, holding an
// exclusive lock for the duration — this is the per-user slice of the
// verification lane's "hold an exclusive coordination primitive while
// reading state, checking invariants, and writing back" contract.
func (s *Store) applyMutation(userID [block.IDSize]byte, fn func(*User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.GetUser(userID)
	if err != nil {
		u = &User{UserID: userID}
	}
	if err := fn(u); err != nil {
		return err
	}
	if err := s.PutUser(u); err != nil {
		return err
	}
	for _, d := range u.Devices {
		if err := s.devices.Put(deviceIndexRow{DeviceID: d.DeviceID, UserID: userID}); err != nil {
			return err
		}
	}
	return nil
}
