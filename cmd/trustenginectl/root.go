// Package main implements trustenginectl, a command-line harness for the
// trust engine: it can stand up a demo trustchain, enroll device identities
// against it, and drive the Session orchestrator's encrypt/decrypt/sync
// operations from the shell. There is no real network client in this
// module, so every invocation talks to a shared on-disk block log
// (transport.File) that stands in for the server, the way an NDF or
// contact file stands in for registration in a CLI demo.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
	"github.com/trustmesh/trustmesh-core/primitives"
	"github.com/trustmesh/trustmesh-core/session"
	"github.com/trustmesh/trustmesh-core/transport"
)

// Execute adds all child commands to the root command and runs it. Called
// once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trustenginectl",
	Short: "Drives the trust engine's encryption session from the shell",
	Args:  cobra.NoArgs,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP("logLevel", "v", 0, "Verbose mode for debugging")
	viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("logLevel"))

	rootCmd.PersistentFlags().StringP("log", "l", "-", "Path to the log output (- is stdout)")
	viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().StringP("session", "s", "", "Session storage directory (required)")
	viper.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))

	rootCmd.PersistentFlags().StringP("password", "p", "", "Password protecting the session storage")
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))

	rootCmd.PersistentFlags().StringP("blocklog", "b", "blocks.ndjson",
		"Path to the shared block log standing in for a server")
	viper.BindPFlag("blocklog", rootCmd.PersistentFlags().Lookup("blocklog"))

	cobra.OnInitialize(func() {
		initLog(viper.GetUint("logLevel"), viper.GetString("log"))
	})
}

func initConfig() {}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		jww.SetStdoutOutput(ioutil.Discard)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(f)
	}

	switch {
	case threshold > 1:
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	case threshold == 1:
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	default:
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// localManifest is the CLI's own small record of which trustchain and
// device this session directory belongs to, since Session itself has no
// notion of "the" current device beyond what its caller supplies.
type localManifest struct {
	TrustchainID string `json:"trustchainId"`
	DeviceID     string `json:"deviceId"`
	UserID       string `json:"userId"`
}

func manifestPath(sessionDir string) string {
	return filepath.Join(sessionDir, "manifest.json")
}

func loadManifest(sessionDir string) (*localManifest, error) {
	raw, err := ioutil.ReadFile(manifestPath(sessionDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read session manifest (run 'create-device' first)")
	}
	var m localManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "corrupt session manifest")
	}
	return &m, nil
}

func saveManifest(sessionDir string, m *localManifest) error {
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create session directory")
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode session manifest")
	}
	return ioutil.WriteFile(manifestPath(sessionDir), raw, 0o600)
}

// derivePassphraseKey turns the user-facing --password flag into the
// 32-byte key that unlocks the local safe, keeping the CLI to a single
// password even though ekv.NewFilestore and safe.Open each want their own
// key material.
func derivePassphraseKey(password string) []byte {
	return primitives.Hash([]byte("trustenginectl-safe-key"), []byte(password))
}

// openSession opens the on-disk KV and the shared block-log transport for
// the current --session/--password/--blocklog flags, then constructs a
// Session bound to the manifest's trustchain and device ids.
func openSession(cmd *cobra.Command) (*session.Session, *localManifest, error) {
	sessionDir := viper.GetString("session")
	if sessionDir == "" {
		return nil, nil, errors.New("--session is required")
	}
	password := viper.GetString("password")
	if password == "" {
		return nil, nil, errors.New("--password is required")
	}

	m, err := loadManifest(sessionDir)
	if err != nil {
		return nil, nil, err
	}

	store, err := ekv.NewFilestore(sessionDir, password)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open local storage")
	}
	kv := versioned.NewKV(store)

	tr, err := transport.NewFile(viper.GetString("blocklog"))
	if err != nil {
		return nil, nil, err
	}

	trustchainID, err := decodeID(m.TrustchainID)
	if err != nil {
		return nil, nil, err
	}
	deviceID, err := decodeID(m.DeviceID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := session.Open(kv, derivePassphraseKey(password), trustchainID, deviceID, tr)
	if err != nil {
		return nil, nil, err
	}
	return sess, m, nil
}

func decodeID(s string) ([block.IDSize]byte, error) {
	var id [block.IDSize]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "malformed id in session manifest")
	}
	if len(raw) != block.IDSize {
		return id, errors.Errorf("id has wrong length: got %d want %d", len(raw), block.IDSize)
	}
	copy(id[:], raw)
	return id, nil
}

func encodeID(id [block.IDSize]byte) string { return hex.EncodeToString(id[:]) }

func hexResourceID(id [block.ResourceIDSize]byte) string { return hex.EncodeToString(id[:]) }
