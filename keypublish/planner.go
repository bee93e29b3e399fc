// Package keypublish plans the key-publish blocks needed to share one
// resource key with a set of recipients: one block per user,
// group, and provisional identity, all sharing a single author.
package keypublish

import (
	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/group"
	"github.com/trustmesh/trustmesh-core/identity"
	"github.com/trustmesh/trustmesh-core/primitives"
)

// ProvisionalTarget addresses a provisional identity by its two public
// half-keys, as returned by transport's getProvisionalIdentityPublicKeys.
type ProvisionalTarget struct {
	AppPublicKey    [block.EncryptionKeySize]byte
	ServerPublicKey [block.EncryptionKeySize]byte
}

// Recipients is the set of targets to share one resource key with. There is
// no separate self-targeting field: Session.Encrypt always caches the
// resource key in the local device's resourcekey store before planning any
// blocks, so the local device can always decrypt its own ciphertext without
// a key-publish-to-self block.
type Recipients struct {
	Users        [][block.IDSize]byte
	Groups       [][block.IDSize]byte
	Provisionals []ProvisionalTarget
}

// Planner produces key-publish blocks against the local identity and
// group stores.
type Planner struct {
	identities *identity.Store
	groups     *group.Store
}

// NewPlanner binds a Planner to the stores it reads recipient keys from.
func NewPlanner(identities *identity.Store, groups *group.Store) *Planner {
	return &Planner{identities: identities, groups: groups}
}

// Plan builds one block per recipient, all authored by localDeviceID, for
// sharing resourceKey (keyed by resourceID). Sharing with the local user is
// handled by the caller including the local user in Users if a key-publish
// to self is wanted on the log; Session.Encrypt's own local cache makes
// that block optional for decryption, never required.
func (p *Planner) Plan(resourceKey []byte, resourceID [block.ResourceIDSize]byte, localDeviceID [block.IDSize]byte, trustchainID [block.IDSize]byte, recipients Recipients) ([]*block.Block, error) {
	var blocks []*block.Block

	for _, userID := range recipients.Users {
		u, err := p.identities.GetUser(userID)
		if err != nil {
			return nil, apierr.Wrap(apierr.ResourceNotFound, err, "key-publish recipient user not found")
		}
		pub, ok := u.CurrentPublicKey()
		if !ok {
			return nil, apierr.New(apierr.ResourceNotFound, "key-publish recipient user has no user-keys")
		}
		sealed, err := primitives.SealAnonymous(&pub, resourceKey)
		if err != nil {
			return nil, err
		}
		payload := &block.KeyPublishToUserOrGroupPayload{ToGroup: false, Recipient: pub, ResourceID: resourceID}
		copy(payload.EncKey[:], sealed)
		blocks = append(blocks, block.NewBlock(0, trustchainID, localDeviceID, payload))
	}

	for _, groupID := range recipients.Groups {
		g, err := p.groups.Get(groupID)
		if err != nil {
			return nil, apierr.Wrap(apierr.ResourceNotFound, err, "key-publish recipient group not found")
		}
		sealed, err := primitives.SealAnonymous(&g.PublicEncryptionKey, resourceKey)
		if err != nil {
			return nil, err
		}
		payload := &block.KeyPublishToUserOrGroupPayload{ToGroup: true, Recipient: g.PublicEncryptionKey, ResourceID: resourceID}
		copy(payload.EncKey[:], sealed)
		blocks = append(blocks, block.NewBlock(0, trustchainID, localDeviceID, payload))
	}

	for _, prov := range recipients.Provisionals {
		innerSealed, err := primitives.SealAnonymous(&prov.AppPublicKey, resourceKey)
		if err != nil {
			return nil, err
		}
		outerSealed, err := primitives.SealAnonymous(&prov.ServerPublicKey, innerSealed)
		if err != nil {
			return nil, err
		}
		payload := &block.KeyPublishToProvisionalUserPayload{
			AppPublicKey:    prov.AppPublicKey,
			ServerPublicKey: prov.ServerPublicKey,
			ResourceID:      resourceID,
		}
		copy(payload.EncKey[:], outerSealed)
		blocks = append(blocks, block.NewBlock(0, trustchainID, localDeviceID, payload))
	}

	return blocks, nil
}
