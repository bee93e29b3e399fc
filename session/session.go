// Package session implements the orchestrator: the single logical
// verification lane binding the local stores (trustchain, identity, group,
// safe, resource-key cache) to the key-publish planner, the streaming AEAD
// codec, and the transport. It is the one object an SDK shell constructs
// per signed-in user.
package session

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/group"
	"github.com/trustmesh/trustmesh-core/identity"
	"github.com/trustmesh/trustmesh-core/keypublish"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/resourcekey"
	"github.com/trustmesh/trustmesh-core/safe"
	"github.com/trustmesh/trustmesh-core/stream"
	"github.com/trustmesh/trustmesh-core/transport"
	"github.com/trustmesh/trustmesh-core/trustchain"
)

// Session binds one signed-in user's local state to one transport. All
// verification-lane mutation (block application, key-publish resolution)
// is serialized through laneMu, matching the single-event-loop scheduling
// model; I/O itself (network, AEAD) runs unlocked.
type Session struct {
	TrustchainID [block.IDSize]byte
	DeviceID     [block.IDSize]byte

	Chain     *trustchain.State
	Idents    *identity.Store
	IdentV    *identity.Verifier
	Groups    *group.Store
	GroupV    *group.Verifier
	Safe      *safe.Safe
	Keys      *resourcekey.Manager
	Planner   *keypublish.Planner
	Transport transport.Transport

	laneMu sync.Mutex
	closed bool
}

// Open constructs a Session over kv, deriving every sub-store from it. The
// passphraseKey unlocks the local safe. It is derived once at user
// creation from (trustchainId, userId) and never transmitted; deriving
// that key is the SDK shell's job, and Open takes the already-derived key.
func Open(kv *versioned.KV, passphraseKey []byte, trustchainID, localDeviceID [block.IDSize]byte, t transport.Transport) (*Session, error) {
	chain, err := trustchain.Open(kv.Prefix("trustchain"))
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to open trustchain store")
	}

	idents := identity.NewStore(kv.Prefix("identity"))
	idv := identity.NewVerifier(chain, idents)

	groups := group.NewStore(kv.Prefix("groups"))

	safeBox, err := safe.Open(kv.Prefix("safe"), passphraseKey)
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to open local key safe")
	}

	gv := group.NewVerifier(idents, groups, safeBox)
	keys := resourcekey.NewManager(kv.Prefix("resourcekeys"), groups, safeBox)
	planner := keypublish.NewPlanner(idents, groups)

	return &Session{
		TrustchainID: trustchainID,
		DeviceID:     localDeviceID,
		Chain:        chain,
		Idents:       idents,
		IdentV:       idv,
		Groups:       groups,
		GroupV:       gv,
		Safe:         safeBox,
		Keys:         keys,
		Planner:      planner,
		Transport:    t,
	}, nil
}

// EncryptResult is the output of Encrypt: the resource id (also the AEAD
// ciphertext's addressable handle), the ciphertext, and the key-publish
// blocks that must be pushed so recipients can later resolve the key.
type EncryptResult struct {
	ResourceID   [block.ResourceIDSize]byte
	Ciphertext   []byte
	KeyPublishes []*block.Block
}

// Encrypt seals plain under a freshly generated resource key and plans one
// key-publish block per recipient in recipients. The caller
// (the SDK shell) is responsible for pushing the returned blocks via
// Transport.PushBlocks — Encrypt does not transmit by itself, so a caller
// can batch multiple encrypts into one push.
func (s *Session) Encrypt(plain []byte, recipients keypublish.Recipients) (*EncryptResult, error) {
	if s.closed {
		return nil, apierr.New(apierr.InvalidSessionStatus, "session is closed")
	}

	resourceKey, err := primitives.GenerateSymmetricKey()
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to generate resource key")
	}

	ciphertext, err := primitives.AEADEncrypt(resourceKey, plain, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to seal plaintext")
	}

	var resourceID [block.ResourceIDSize]byte
	copy(resourceID[:], ciphertext[len(ciphertext)-block.ResourceIDSize:])

	s.laneMu.Lock()
	defer s.laneMu.Unlock()

	if err := s.Keys.Put(resourceID, resourceKey); err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to cache resource key")
	}

	blocks, err := s.Planner.Plan(resourceKey, resourceID, s.DeviceID, s.TrustchainID, recipients)
	if err != nil {
		return nil, err
	}

	return &EncryptResult{ResourceID: resourceID, Ciphertext: ciphertext, KeyPublishes: blocks}, nil
}

// Decrypt resolves the resource key for resourceID (trying the cache, then
// publishes already known locally) and opens ciphertext. publishes is the
// set of key-publish payloads the caller has observed for this resourceID
// (typically fetched from transport ahead of the call); Decrypt does not
// itself reach out to the network.
func (s *Session) Decrypt(resourceID [block.ResourceIDSize]byte, ciphertext []byte, publishes []resourcekey.KeyPublish) ([]byte, error) {
	if s.closed {
		return nil, apierr.New(apierr.InvalidSessionStatus, "session is closed")
	}

	resourceKey, err := s.Keys.Resolve(resourceID, publishes)
	if err != nil {
		return nil, err
	}

	plain, err := primitives.AEADDecrypt(resourceKey, ciphertext, nil)
	if err != nil {
		jww.WARN.Printf("[trustengine] decrypt failed for resource %x: %v", resourceID, err)
		return nil, apierr.Wrap(apierr.DecryptionFailed, err, "ciphertext failed authentication")
	}
	return plain, nil
}

// EncryptStream wraps r as a streaming-encrypted frame written to w under a
// fresh resource key, returning the same EncryptResult shape as Encrypt
// (with Ciphertext left nil; the stream itself was written to w).
func (s *Session) EncryptStream(w io.Writer, r io.Reader, chunkSize int, recipients keypublish.Recipients) (*EncryptResult, error) {
	if s.closed {
		return nil, apierr.New(apierr.InvalidSessionStatus, "session is closed")
	}

	resourceKey, err := primitives.GenerateSymmetricKey()
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to generate resource key")
	}

	resourceIDBytes, err := primitives.RandomBytes(block.ResourceIDSize)
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to generate resource id")
	}
	var resourceID [block.ResourceIDSize]byte
	copy(resourceID[:], resourceIDBytes)

	if chunkSize <= 0 {
		chunkSize = stream.DefaultChunkSize
	}
	if err := stream.EncryptAll(w, r, resourceID, resourceKey, chunkSize); err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to encrypt stream")
	}

	s.laneMu.Lock()
	defer s.laneMu.Unlock()

	if err := s.Keys.Put(resourceID, resourceKey); err != nil {
		return nil, apierr.Wrap(apierr.InternalError, err, "failed to cache resource key")
	}

	blocks, err := s.Planner.Plan(resourceKey, resourceID, s.DeviceID, s.TrustchainID, recipients)
	if err != nil {
		return nil, err
	}

	return &EncryptResult{ResourceID: resourceID, KeyPublishes: blocks}, nil
}

// DecryptStream reads a streaming-encrypted frame from r, resolving its
// resource key via publishes, and writes the plaintext to w. The frame's
// resourceId is only known after the header is read, so key resolution
// necessarily happens mid-stream rather than up front.
func (s *Session) DecryptStream(w io.Writer, r io.Reader, publishes []resourcekey.KeyPublish) (stream.Header, error) {
	if s.closed {
		return stream.Header{}, apierr.New(apierr.InvalidSessionStatus, "session is closed")
	}

	header, err := stream.ParseHeader(r)
	if err != nil {
		return stream.Header{}, err
	}

	resourceKey, err := s.Keys.Resolve(header.ResourceID, publishes)
	if err != nil {
		return header, err
	}

	dec := stream.NewDecryptor(resourceKey)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return header, nil
			}
			return header, apierr.Wrap(apierr.InvalidEncryptionFormat, err, "failed to read chunk length")
		}
		ct := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, ct); err != nil {
			return header, apierr.Wrap(apierr.InvalidEncryptionFormat, err, "truncated stream chunk")
		}
		plain, derr := dec.DecryptChunk(ct)
		if derr != nil {
			return header, derr
		}
		if _, werr := w.Write(plain); werr != nil {
			return header, apierr.Wrap(apierr.InternalError, werr, "failed to write decrypted chunk")
		}
	}
}

// PushBlocks transmits blocks (typically the KeyPublishes from an Encrypt
// result) via the bound transport.
func (s *Session) PushBlocks(ctx context.Context, blocks []*block.Block) error {
	if err := s.Transport.PushBlocks(ctx, blocks); err != nil {
		return apierr.Wrap(apierr.NetworkError, err, "failed to push blocks")
	}
	return nil
}

// Close zeros the device's in-memory private keys and marks the session
// unusable. Safe to call more than once. The device keypairs are also part
// of the safe's sealed record in kv (persisted by InitDevice/SetDevice);
// Close does not rewrite or delete that record.
func (s *Session) Close() {
	s.laneMu.Lock()
	defer s.laneMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	s.Safe.ZeroDeviceSecrets()
	jww.INFO.Printf("[trustengine] session closed, device secrets zeroed")
}
