package block

import "github.com/trustmesh/trustmesh-core/apierr"

// GroupMemberSlot is one member entry of a group-creation or
// group-addition block: the member's user encryption public key and the
// group private encryption key sealed to it.
type GroupMemberSlot struct {
	UserPublicEncKey   [EncryptionKeySize]byte
	EncGroupPrivEncKey [SealedKeySize]byte
}

// PendingProvisionalSlot seals the group private encryption key to a
// provisional identity that has not yet been claimed. The wire shape here
// is the one decision called out as an open question: some revisions of
// the source omit it entirely, so an absent trailing section always
// parses as an empty slice rather than an error.
type PendingProvisionalSlot struct {
	AppPublicKey       [EncryptionKeySize]byte
	ServerPublicKey    [EncryptionKeySize]byte
	EncGroupPrivEncKey [ProvisionalSealedKeySize]byte
}

func marshalMemberSlots(slots []GroupMemberSlot) []byte {
	out := putUvarint(nil, uint64(len(slots)))
	for _, s := range slots {
		out = append(out, s.UserPublicEncKey[:]...)
		out = append(out, s.EncGroupPrivEncKey[:]...)
	}
	return out
}

func parseMemberSlots(data []byte) ([]GroupMemberSlot, []byte, error) {
	n, consumed, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	rest := data[consumed:]

	slots := make([]GroupMemberSlot, 0, n)
	for i := uint64(0); i < n; i++ {
		var s GroupMemberSlot
		var field []byte
		if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
			return nil, nil, err
		}
		copy(s.UserPublicEncKey[:], field)

		if field, rest, err = takeFixed(rest, SealedKeySize); err != nil {
			return nil, nil, err
		}
		copy(s.EncGroupPrivEncKey[:], field)

		slots = append(slots, s)
	}
	return slots, rest, nil
}

func marshalPendingSlots(slots []PendingProvisionalSlot) []byte {
	out := putUvarint(nil, uint64(len(slots)))
	for _, s := range slots {
		out = append(out, s.AppPublicKey[:]...)
		out = append(out, s.ServerPublicKey[:]...)
		out = append(out, s.EncGroupPrivEncKey[:]...)
	}
	return out
}

// parseOptionalPendingSlots parses a trailing pending-provisional section
// if any bytes remain, and returns an empty slice (not an error) when the
// block ends before it, per the open question on this section's stability.
func parseOptionalPendingSlots(data []byte) ([]PendingProvisionalSlot, []byte, error) {
	if len(data) == 0 {
		return nil, data, nil
	}
	n, consumed, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	rest := data[consumed:]

	slots := make([]PendingProvisionalSlot, 0, n)
	for i := uint64(0); i < n; i++ {
		var s PendingProvisionalSlot
		var field []byte
		if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
			return nil, nil, err
		}
		copy(s.AppPublicKey[:], field)

		if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
			return nil, nil, err
		}
		copy(s.ServerPublicKey[:], field)

		if field, rest, err = takeFixed(rest, ProvisionalSealedKeySize); err != nil {
			return nil, nil, err
		}
		copy(s.EncGroupPrivEncKey[:], field)

		slots = append(slots, s)
	}
	return slots, rest, nil
}

// --- UserGroupCreation -------------------------------------------------

// UserGroupCreationPayload announces a new group: its signature and
// encryption public keys, the sealed group private signature key, the
// initial member slots, and a self-signature binding the block to the
// group's own identity.
type UserGroupCreationPayload struct {
	PublicSignatureKey  [IDSize]byte
	PublicEncryptionKey [EncryptionKeySize]byte
	EncGroupPrivSigKey  [SealedGroupPrivSigSize]byte
	Members             []GroupMemberSlot
	SelfSignature       [SignatureSize]byte
	PendingProvisional  []PendingProvisionalSlot
}

func (p *UserGroupCreationPayload) Nature() Nature { return NatureUserGroupCreation }

// SignedPortion returns the canonical byte concatenation the group's
// self-signature is computed over: every field up to but excluding the
// signature itself.
func (p *UserGroupCreationPayload) SignedPortion() []byte {
	out := append([]byte(nil), p.PublicSignatureKey[:]...)
	out = append(out, p.PublicEncryptionKey[:]...)
	out = append(out, p.EncGroupPrivSigKey[:]...)
	out = append(out, marshalMemberSlots(p.Members)...)
	return out
}

func (p *UserGroupCreationPayload) Marshal() []byte {
	out := p.SignedPortion()
	out = append(out, p.SelfSignature[:]...)
	out = append(out, marshalPendingSlots(p.PendingProvisional)...)
	return out
}

func parseUserGroupCreation(data []byte) (*UserGroupCreationPayload, error) {
	var p UserGroupCreationPayload
	field, rest, err := takeFixed(data, IDSize)
	if err != nil {
		return nil, err
	}
	copy(p.PublicSignatureKey[:], field)

	if field, rest, err = takeFixed(rest, EncryptionKeySize); err != nil {
		return nil, err
	}
	copy(p.PublicEncryptionKey[:], field)

	if field, rest, err = takeFixed(rest, SealedGroupPrivSigSize); err != nil {
		return nil, err
	}
	copy(p.EncGroupPrivSigKey[:], field)

	if p.Members, rest, err = parseMemberSlots(rest); err != nil {
		return nil, err
	}

	if field, rest, err = takeFixed(rest, SignatureSize); err != nil {
		return nil, err
	}
	copy(p.SelfSignature[:], field)

	if p.PendingProvisional, rest, err = parseOptionalPendingSlots(rest); err != nil {
		return nil, err
	}

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in user group creation payload")
	}
	return &p, nil
}

// --- UserGroupAddition ---------------------------------------------------

// UserGroupAdditionPayload adds members to an existing group.
type UserGroupAdditionPayload struct {
	GroupID            [IDSize]byte
	PreviousGroupBlock [IDSize]byte
	Members            []GroupMemberSlot
	SelfSignature      [SignatureSize]byte
	PendingProvisional []PendingProvisionalSlot
}

func (p *UserGroupAdditionPayload) Nature() Nature { return NatureUserGroupAddition }

func (p *UserGroupAdditionPayload) SignedPortion() []byte {
	out := append([]byte(nil), p.GroupID[:]...)
	out = append(out, p.PreviousGroupBlock[:]...)
	out = append(out, marshalMemberSlots(p.Members)...)
	return out
}

func (p *UserGroupAdditionPayload) Marshal() []byte {
	out := p.SignedPortion()
	out = append(out, p.SelfSignature[:]...)
	out = append(out, marshalPendingSlots(p.PendingProvisional)...)
	return out
}

func parseUserGroupAddition(data []byte) (*UserGroupAdditionPayload, error) {
	var p UserGroupAdditionPayload
	field, rest, err := takeFixed(data, IDSize)
	if err != nil {
		return nil, err
	}
	copy(p.GroupID[:], field)

	if field, rest, err = takeFixed(rest, IDSize); err != nil {
		return nil, err
	}
	copy(p.PreviousGroupBlock[:], field)

	if p.Members, rest, err = parseMemberSlots(rest); err != nil {
		return nil, err
	}

	if field, rest, err = takeFixed(rest, SignatureSize); err != nil {
		return nil, err
	}
	copy(p.SelfSignature[:], field)

	if p.PendingProvisional, rest, err = parseOptionalPendingSlots(rest); err != nil {
		return nil, err
	}

	if len(rest) != 0 {
		return nil, apierr.New(apierr.InvalidEncryptionFormat, "trailing bytes in user group addition payload")
	}
	return &p, nil
}
