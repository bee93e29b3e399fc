// Package trustchain owns the single root-of-trust record: the
// TrustchainId, the root public signature key it pins, and the highest
// verified block index.
package trustchain

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
)

const recordKey = "root"
const recordVersion = 0

type record struct {
	ID                     [block.IDSize]byte
	RootPublicSignatureKey []byte
	VerifiedIndex          uint64
	Initialized            bool
}

// State is the process-singleton root-of-trust record for one trustchain.
type State struct {
	mu  sync.RWMutex
	kv  *versioned.KV
	rec record
}

// Open loads (or initializes empty) trustchain state from kv.
func Open(kv *versioned.KV) (*State, error) {
	s := &State{kv: kv}
	obj, err := kv.Get(recordKey, recordVersion)
	if err != nil {
		return s, nil
	}
	if err := json.Unmarshal(obj.Data, &s.rec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal trustchain record")
	}
	return s, nil
}

func (s *State) save() error {
	data, err := json.Marshal(s.rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal trustchain record")
	}
	return s.kv.Set(recordKey, &versioned.Object{Version: recordVersion, Data: data})
}

// ApplyCreation verifies and applies the root TrustchainCreation block:
// it must be the first block, author and signature are zero, and the
// block hash equals the trustchain id itself.
func (s *State) ApplyCreation(blk *block.Block, payload *block.TrustchainCreationPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.Initialized {
		return apierr.New(apierr.Conflict, "trustchain already initialized")
	}
	if blk.Index != 0 {
		return apierr.NewBlock(apierr.SubcodeForbidden, "trustchain creation must be the first block")
	}
	var zeroAuthor [block.IDSize]byte
	var zeroSig [block.SignatureSize]byte
	if blk.Author != zeroAuthor {
		return apierr.NewBlock(apierr.SubcodeInvalidAuthor, "trustchain creation author must be zero")
	}
	if blk.Signature != zeroSig {
		return apierr.NewBlock(apierr.SubcodeInvalidSignature, "trustchain creation signature must be zero")
	}

	hash := blk.Hash()
	if len(hash) != block.IDSize {
		return apierr.New(apierr.InternalError, "hash size mismatch")
	}
	var hashArr [block.IDSize]byte
	copy(hashArr[:], hash)
	if hashArr != blk.TrustchainID {
		return apierr.NewBlock(apierr.SubcodeInvalidAuthor, "trustchain id does not match block hash")
	}

	s.rec = record{
		ID:                     blk.TrustchainID,
		RootPublicSignatureKey: append([]byte(nil), payload.PublicSignatureKey[:]...),
		VerifiedIndex:          0,
		Initialized:            true,
	}
	return s.save()
}

// RootPublicSignatureKey returns the pinned root key, or nil if the
// trustchain has not been created yet.
func (s *State) RootPublicSignatureKey() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.rec.Initialized {
		return nil
	}
	return append([]byte(nil), s.rec.RootPublicSignatureKey...)
}

// Initialized reports whether the root block has been verified.
func (s *State) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Initialized
}

// ID returns the trustchain id.
func (s *State) ID() [block.IDSize]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.ID
}

// AdvanceVerifiedIndex records that every block up to and including index
// has now been verified and applied. It never moves backwards.
func (s *State) AdvanceVerifiedIndex(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index <= s.rec.VerifiedIndex {
		return nil
	}
	s.rec.VerifiedIndex = index
	return s.save()
}

// VerifiedIndex returns the highest verified block index.
func (s *State) VerifiedIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.VerifiedIndex
}
