package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/transport"
)

var genesisRootKeyOut string

// genesisCmd stands up a brand new trustchain: a signing keypair held by
// whoever is standing in for the issuing authority, and the trustchain's
// own genesis block (index 0, zero author and zero signature per
// trustchain.State.ApplyCreation's rules). The root private key is
// demo-only material; a production deployment would never let a client
// binary hold it.
var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Create a new trustchain and push its genesis block",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rootKeys, err := primitives.GenerateSignatureKeyPair()
		if err != nil {
			return errors.Wrap(err, "failed to generate trustchain root key")
		}

		payload := &block.TrustchainCreationPayload{}
		copy(payload.PublicSignatureKey[:], rootKeys.PublicKey)

		unsigned := block.NewBlock(0, [block.IDSize]byte{}, [block.IDSize]byte{}, payload)
		var trustchainID [block.IDSize]byte
		copy(trustchainID[:], unsigned.Hash())
		unsigned.TrustchainID = trustchainID

		tr, err := transport.NewFile(viper.GetString("blocklog"))
		if err != nil {
			return err
		}
		if err := tr.PushBlocks(context.Background(), []*block.Block{unsigned}); err != nil {
			return err
		}

		if genesisRootKeyOut != "" {
			if err := ioutil.WriteFile(genesisRootKeyOut, []byte(hex.EncodeToString(rootKeys.PrivateKey)), 0o600); err != nil {
				return errors.Wrap(err, "failed to write root key")
			}
		}

		fmt.Printf("trustchain %s\n", encodeID(trustchainID))
		return nil
	},
}

func init() {
	genesisCmd.Flags().StringVar(&genesisRootKeyOut, "rootkey-out", "rootkey.hex",
		"Where to write the trustchain's root signing key (demo only)")
	rootCmd.AddCommand(genesisCmd)
}
