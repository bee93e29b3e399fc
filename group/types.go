// Package group implements the group state machine: verifying and
// applying user-group-creation and user-group-addition blocks, and
// tracking each group's transition from External (keys unknown) to
// Internal (this device holds the group's private keys).
package group

import "github.com/trustmesh/trustmesh-core/block"

// Group is the union of the Internal and External group shapes:
// PrivateSignatureKey/PrivateEncryptionKey are only populated once
// Internal is true. GroupID equals PublicSignatureKey (the group's own
// verification key doubles as its identity).
type Group struct {
	GroupID                      [block.IDSize]byte
	PublicEncryptionKey          [block.EncryptionKeySize]byte
	EncryptedPrivateSignatureKey [block.SealedGroupPrivSigSize]byte
	Members                      []block.GroupMemberSlot
	PendingProvisional           []block.PendingProvisionalSlot
	LastGroupBlock               [block.IDSize]byte
	Index                        uint64

	Internal             bool
	PrivateSignatureKey  [64]byte // Internal only; Ed25519 expanded key
	PrivateEncryptionKey [32]byte // Internal only
}

// IsMember reports whether userEncKey appears in the group's current
// member slots.
func (g *Group) IsMember(userEncKey [block.EncryptionKeySize]byte) bool {
	for _, m := range g.Members {
		if m.UserPublicEncKey == userEncKey {
			return true
		}
	}
	return false
}
