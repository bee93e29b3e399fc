package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/resourcekey"
	"github.com/trustmesh/trustmesh-core/session"
)

var (
	decryptResource   string
	decryptCiphertext string
)

// decryptCmd resolves a resource's key from whatever key-publish blocks
// the session can see (first the local cache, then the shared block log)
// and opens the ciphertext. Run 'sync' first if the key-publish for this
// resource hasn't been applied locally yet.
var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt a ciphertext produced by 'encrypt'",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		resourceIDRaw, err := hex.DecodeString(decryptResource)
		if err != nil || len(resourceIDRaw) != block.ResourceIDSize {
			return errors.New("--resource must be a hex resource id")
		}
		var resourceID [block.ResourceIDSize]byte
		copy(resourceID[:], resourceIDRaw)

		var ciphertext []byte
		if decryptCiphertext != "" {
			ciphertext, err = base64.StdEncoding.DecodeString(decryptCiphertext)
		} else {
			var raw []byte
			raw, err = ioutil.ReadAll(os.Stdin)
			if err == nil {
				ciphertext, err = base64.StdEncoding.DecodeString(string(raw))
			}
		}
		if err != nil {
			return errors.Wrap(err, "failed to read ciphertext")
		}

		publishes, err := collectPublishes(sess, resourceID)
		if err != nil {
			return err
		}

		plain, err := sess.Decrypt(resourceID, ciphertext, publishes)
		if err != nil {
			return err
		}

		fmt.Println(string(plain))
		return nil
	},
}

// collectPublishes scans the shared block log for every key-publish block
// naming resourceID, so Decrypt's resolver has something to try beyond
// its local cache even if 'sync' hasn't applied them yet.
func collectPublishes(sess *session.Session, resourceID [block.ResourceIDSize]byte) ([]resourcekey.KeyPublish, error) {
	blocks, err := sess.Transport.GetUserHistoryByDeviceIDs(context.Background(),
		[][block.IDSize]byte{sess.DeviceID})
	if err != nil {
		return nil, err
	}

	var out []resourcekey.KeyPublish
	for _, blk := range blocks {
		if !blk.Nature.IsKeyPublish() {
			continue
		}
		payload, err := block.ParsePayload(blk.Nature, blk.Payload)
		if err != nil {
			continue
		}
		switch blk.Nature {
		case block.NatureKeyPublishToDevice:
			p := payload.(*block.KeyPublishToDevicePayload)
			if p.ResourceID == resourceID {
				out = append(out, resourcekey.KeyPublish{ToDevice: p})
			}
		case block.NatureKeyPublishToUser:
			p := payload.(*block.KeyPublishToUserOrGroupPayload)
			if p.ResourceID == resourceID {
				out = append(out, resourcekey.KeyPublish{ToUser: p})
			}
		case block.NatureKeyPublishToUserGroup:
			p := payload.(*block.KeyPublishToUserOrGroupPayload)
			if p.ResourceID == resourceID {
				out = append(out, resourcekey.KeyPublish{ToGroup: p})
			}
		case block.NatureKeyPublishToProvisionalUser:
			p := payload.(*block.KeyPublishToProvisionalUserPayload)
			if p.ResourceID == resourceID {
				out = append(out, resourcekey.KeyPublish{ToProvisional: p})
			}
		}
	}
	return out, nil
}

func init() {
	decryptCmd.Flags().StringVar(&decryptResource, "resource", "", "Resource id (hex), required")
	decryptCmd.Flags().StringVar(&decryptCiphertext, "ciphertext", "",
		"Base64 ciphertext; defaults to reading from stdin")
	decryptCmd.MarkFlagRequired("resource")
	rootCmd.AddCommand(decryptCmd)
}
