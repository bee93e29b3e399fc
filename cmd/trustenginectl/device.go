package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/safe"
	"github.com/trustmesh/trustmesh-core/transport"
)

var (
	deviceRootKeyFile string
	deviceUserTag     string
)

// deviceCmd bootstraps a brand new user's first device against an
// existing trustchain (a v3 device-creation block, the only version that
// also establishes the user's own encryption keypair history — see
// identity.Verifier.ApplyDeviceCreation). Adding a second device to an
// existing user needs an existing device to countersign and isn't wired
// into this harness.
var deviceCmd = &cobra.Command{
	Use:   "create-device",
	Short: "Create a new user's first device against an existing trustchain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionDir := viper.GetString("session")
		password := viper.GetString("password")
		if sessionDir == "" || password == "" {
			return errors.New("--session and --password are required")
		}

		rootKeyHex, err := ioutil.ReadFile(deviceRootKeyFile)
		if err != nil {
			return errors.Wrap(err, "failed to read trustchain root key")
		}
		rootPriv, err := hex.DecodeString(string(rootKeyHex))
		if err != nil {
			return errors.Wrap(err, "malformed root key file")
		}

		tr, err := transport.NewFile(viper.GetString("blocklog"))
		if err != nil {
			return err
		}
		genesisBlk, err := findGenesis(tr)
		if err != nil {
			return err
		}
		var trustchainID [block.IDSize]byte
		copy(trustchainID[:], genesisBlk.Hash())

		devSig, err := primitives.GenerateSignatureKeyPair()
		if err != nil {
			return err
		}
		ephemeral, err := primitives.GenerateSignatureKeyPair()
		if err != nil {
			return err
		}
		devEnc, err := primitives.GenerateEncryptionKeyPair()
		if err != nil {
			return err
		}
		userEnc, err := primitives.GenerateEncryptionKeyPair()
		if err != nil {
			return err
		}

		userIDRaw, err := primitives.RandomBytes(block.IDSize)
		if err != nil {
			return err
		}
		var userID [block.IDSize]byte
		copy(userID[:], userIDRaw)
		if deviceUserTag != "" {
			copy(userID[:], deviceUserTag)
		}

		sealedUserPriv, err := primitives.SealAnonymous(&devEnc.PublicKey, userEnc.PrivateKey[:])
		if err != nil {
			return err
		}

		delegationMsg := append(append([]byte(nil), ephemeral.PublicKey[:]...), userID[:]...)
		payload := &block.DeviceCreationPayload{
			Version:             block.NatureDeviceCreationV3,
			UserID:              userID,
			PublicEncryptionKey: devEnc.PublicKey,
		}
		copy(payload.EphemeralPub[:], ephemeral.PublicKey)
		copy(payload.DelegationSig[:], primitives.Sign(rootPriv, delegationMsg))
		copy(payload.PublicSignatureKey[:], devSig.PublicKey)
		payload.UserPublicEncryptionKey = userEnc.PublicKey
		copy(payload.EncryptedUserPrivateEncKey[:], sealedUserPriv)

		// The first device of any user is authored by the trustchain
		// itself (identity.Verifier.VerifyDeviceCreation's isFirstDevice
		// rule), matching genesisBlk's own hash-derived id.
		blk := block.NewBlock(1, trustchainID, trustchainID, payload)
		copy(blk.Signature[:], primitives.Sign(ephemeral.PrivateKey, blk.Hash()))

		if err := tr.PushBlocks(context.Background(), []*block.Block{blk}); err != nil {
			return err
		}

		var deviceID [block.IDSize]byte
		copy(deviceID[:], blk.Hash())

		store, err := ekv.NewFilestore(sessionDir, password)
		if err != nil {
			return errors.Wrap(err, "failed to create local storage")
		}
		kv := versioned.NewKV(store)

		s, err := safe.Open(kv.Prefix("safe"), derivePassphraseKey(password))
		if err != nil {
			return err
		}
		if err := s.SetDevice(safe.DeviceKeyPair{Signature: devSig, Encryption: devEnc}); err != nil {
			return err
		}
		// Index must match the index ApplyDeviceCreation records this same
		// user-key entry under once this block is synced (the device-
		// creation block's own index, 1 for the first device), or the
		// local safe and the replayed trustchain state disagree.
		if err := s.AddUserKeyPair(userEnc, blk.Index); err != nil {
			return err
		}

		if err := saveManifest(sessionDir, &localManifest{
			TrustchainID: encodeID(trustchainID),
			DeviceID:     encodeID(deviceID),
			UserID:       encodeID(userID),
		}); err != nil {
			return err
		}

		fmt.Printf("device %s (user %s)\n", encodeID(deviceID), encodeID(userID))
		fmt.Println("run 'trustenginectl sync' next to pin the trustchain and apply this device locally")
		return nil
	},
}

func findGenesis(tr *transport.File) (*block.Block, error) {
	blocks, err := tr.GetUserHistoryByUserIDs(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	for _, blk := range blocks {
		if blk.Nature == block.NatureTrustchainCreation {
			return blk, nil
		}
	}
	return nil, errors.New("no genesis block found in block log; run 'trustenginectl genesis' first")
}

func init() {
	deviceCmd.Flags().StringVar(&deviceRootKeyFile, "rootkey", "rootkey.hex",
		"Path to the trustchain's root signing key, as written by 'genesis'")
	deviceCmd.Flags().StringVar(&deviceUserTag, "user-tag", "",
		"Optional short tag embedded in the generated user id, for readability in demos")
	rootCmd.AddCommand(deviceCmd)
}
