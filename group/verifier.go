package group

import (
	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/identity"
	"github.com/trustmesh/trustmesh-core/primitives"
)

// KeyResolver attempts to unseal a group member or pending-provisional
// slot against locally-held private keys. Implemented by the local key
// safe; injected here so this package stays independent of how (or
// whether) this device's keys are stored.
type KeyResolver interface {
	// UnsealMemberSlot tries every local user-encryption keypair against
	// slot.EncGroupPrivEncKey, returning the recovered group private
	// encryption key on success.
	UnsealMemberSlot(slot block.GroupMemberSlot) (groupPrivEncKey [32]byte, ok bool)

	// UnsealPendingSlot tries every local provisional-identity keypair
	// against slot's double seal.
	UnsealPendingSlot(slot block.PendingProvisionalSlot) (groupPrivEncKey [32]byte, ok bool)
}

// Verifier validates user-group-creation and user-group-addition blocks
// against the group Store, advancing it atomically on success.
type Verifier struct {
	identities *identity.Store
	store      *Store
	keys       KeyResolver
}

// NewVerifier binds a Verifier to the identity store (for author
// resolution), the group store it mutates, and the local key resolver
// used to attempt the External->Internal transition.
func NewVerifier(identities *identity.Store, store *Store, keys KeyResolver) *Verifier {
	return &Verifier{identities: identities, store: store, keys: keys}
}

func (v *Verifier) authorSignatureKey(author [block.IDSize]byte, index uint64) ([block.IDSize]byte, error) {
	dev, err := v.identities.GetDevice(author)
	if err != nil {
		return [block.IDSize]byte{}, apierr.NewBlock(apierr.SubcodeInvalidAuthor, "author device not found")
	}
	if dev.RevokedAtIndex(index) {
		return [block.IDSize]byte{}, apierr.NewBlock(apierr.SubcodeRevokedAuthor, "author device is revoked")
	}
	return dev.SignaturePublicKey, nil
}

// VerifyCreation checks blk/payload without mutating the store. A
// duplicate group id is only legal when the announced public encryption
// key is unchanged (re-announcement).
func (v *Verifier) VerifyCreation(blk *block.Block, payload *block.UserGroupCreationPayload) error {
	authorKey, err := v.authorSignatureKey(blk.Author, blk.Index)
	if err != nil {
		return err
	}
	if !primitives.Verify(authorKey[:], blk.Hash(), blk.Signature[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidSignature, "bad block signature")
	}
	if !primitives.Verify(payload.PublicSignatureKey[:], payload.SignedPortion(), payload.SelfSignature[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidSelfSignature, "bad group self-signature")
	}

	existing, err := v.store.Get(payload.PublicSignatureKey)
	if err == nil && existing.PublicEncryptionKey != payload.PublicEncryptionKey {
		return apierr.NewBlock(apierr.SubcodeGroupAlreadyExists, "group id already exists with a different public encryption key")
	}
	return nil
}

// ApplyCreation inserts or re-announces the group and attempts the
// External->Internal transition via the key resolver.
func (v *Verifier) ApplyCreation(blk *block.Block, payload *block.UserGroupCreationPayload) error {
	groupID := payload.PublicSignatureKey
	return v.store.applyMutation(groupID, func(g *Group) error {
		g.GroupID = groupID
		g.PublicEncryptionKey = payload.PublicEncryptionKey
		g.EncryptedPrivateSignatureKey = payload.EncGroupPrivSigKey
		g.Members = payload.Members
		g.PendingProvisional = payload.PendingProvisional
		g.LastGroupBlock = blockID(blk)
		g.Index = blk.Index
		v.tryUnseal(g)
		return nil
	})
}

// VerifyAddition checks blk/payload against the group's current state.
func (v *Verifier) VerifyAddition(blk *block.Block, payload *block.UserGroupAdditionPayload) error {
	authorKey, err := v.authorSignatureKey(blk.Author, blk.Index)
	if err != nil {
		return err
	}
	if !primitives.Verify(authorKey[:], blk.Hash(), blk.Signature[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidSignature, "bad block signature")
	}

	g, err := v.store.Get(payload.GroupID)
	if err != nil {
		return apierr.NewBlock(apierr.SubcodeInvalidAuthor, "group not found")
	}
	if g.LastGroupBlock != payload.PreviousGroupBlock {
		return apierr.NewBlock(apierr.SubcodeInvalidPreviousGroupBlock, "previousGroupBlock does not match group's current last block")
	}
	if !primitives.Verify(g.GroupID[:], payload.SignedPortion(), payload.SelfSignature[:]) {
		return apierr.NewBlock(apierr.SubcodeInvalidSelfSignature, "bad group self-signature")
	}
	return nil
}

// ApplyAddition appends members and pending-provisional slots and
// retries the External->Internal transition.
func (v *Verifier) ApplyAddition(blk *block.Block, payload *block.UserGroupAdditionPayload) error {
	return v.store.applyMutation(payload.GroupID, func(g *Group) error {
		g.Members = append(g.Members, payload.Members...)
		g.PendingProvisional = append(g.PendingProvisional, payload.PendingProvisional...)
		g.LastGroupBlock = blockID(blk)
		g.Index = blk.Index
		v.tryUnseal(g)
		return nil
	})
}

// tryUnseal attempts to recover the group's private keys if not already
// Internal: first the group private encryption key (from any member or
// pending slot this device can unseal), then the group private signature
// key sealed under it. Leaves g untouched on failure so later blocks
// (new member/pending slots, or a newly provisioned local key) can retry.
func (v *Verifier) tryUnseal(g *Group) {
	if g.Internal || v.keys == nil {
		return
	}

	var groupPrivEncKey [32]byte
	var found bool

	for _, m := range g.Members {
		if k, ok := v.keys.UnsealMemberSlot(m); ok {
			groupPrivEncKey, found = k, true
			break
		}
	}
	if !found {
		for _, p := range g.PendingProvisional {
			if k, ok := v.keys.UnsealPendingSlot(p); ok {
				groupPrivEncKey, found = k, true
				break
			}
		}
	}
	if !found {
		return
	}

	seed, err := primitives.OpenAnonymous(
		primitives.EncryptionKeyPair{PublicKey: g.PublicEncryptionKey, PrivateKey: groupPrivEncKey},
		g.EncryptedPrivateSignatureKey[:],
	)
	if err != nil {
		return
	}
	expanded := primitives.ExpandSignatureSeed(seed)

	g.Internal = true
	g.PrivateEncryptionKey = groupPrivEncKey
	copy(g.PrivateSignatureKey[:], expanded)
}

func blockID(blk *block.Block) [block.IDSize]byte {
	var id [block.IDSize]byte
	copy(id[:], blk.Hash())
	return id
}
