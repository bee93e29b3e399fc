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
	"github.com/trustmesh/trustmesh-core/keypublish"
)

var encryptRecipientUsers []string

// encryptCmd seals stdin under a fresh resource key and plans one
// key-publish block per --to recipient, pushing the key-publish blocks so
// recipients can later decrypt. The ciphertext itself is only printed to
// stdout, not transmitted -- transport only carries blocks.
var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt stdin for one or more recipient users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, _, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		plain, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "failed to read stdin")
		}

		var users [][block.IDSize]byte
		for _, u := range encryptRecipientUsers {
			id, err := decodeID(u)
			if err != nil {
				return err
			}
			users = append(users, id)
		}

		result, err := sess.Encrypt(plain, keypublish.Recipients{Users: users})
		if err != nil {
			return err
		}
		if err := sess.PushBlocks(context.Background(), result.KeyPublishes); err != nil {
			return err
		}

		fmt.Printf("resource %s\n", hex.EncodeToString(result.ResourceID[:]))
		fmt.Println(base64.StdEncoding.EncodeToString(result.Ciphertext))
		return nil
	},
}

func init() {
	encryptCmd.Flags().StringArrayVar(&encryptRecipientUsers, "to", nil,
		"Recipient user id (hex), repeatable")
	rootCmd.AddCommand(encryptCmd)
}
