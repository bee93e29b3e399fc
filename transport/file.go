package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/trustmesh/trustmesh-core/block"
)

// fileRecord is one line of a File transport's append-only log: a
// serialized block plus (for provisional-identity seeding) an optional
// target/keys pair.
type fileRecord struct {
	Block             string                   `json:"block,omitempty"`
	ProvisionalTarget string                   `json:"provisionalTarget,omitempty"`
	ProvisionalKeys   *ProvisionalIdentityKeys `json:"provisionalKeys,omitempty"`
}

// File is a Transport backed by a local append-only JSON-lines file,
// standing in for a real server, the way an NDF or contact file stands in
// for a real registration server in a CLI demo. Every PushBlocks call
// appends; every Get* call re-reads and re-parses the whole log, so
// multiple `trustenginectl` invocations against the same file observe
// each other's pushes.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile opens (creating if absent) a File transport at path.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to open block log")
	}
	f.Close()
	return &File{path: path}, nil
}

// PushBlocks implements Transport by appending each block, serialized,
// as one line.
func (f *File) PushBlocks(_ context.Context, blocks []*block.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "transport: failed to open block log for append")
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, blk := range blocks {
		raw, err := blk.Serialize()
		if err != nil {
			return err
		}
		rec := fileRecord{Block: base64.StdEncoding.EncodeToString(raw)}
		if err := enc.Encode(rec); err != nil {
			return errors.Wrap(err, "transport: failed to append block")
		}
	}
	return nil
}

func (f *File) readAll() ([]fileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to open block log")
	}
	defer file.Close()

	var recs []fileRecord
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.Wrap(err, "transport: corrupt block log line")
		}
		recs = append(recs, rec)
	}
	return recs, sc.Err()
}

func (f *File) allBlocks() ([]*block.Block, error) {
	recs, err := f.readAll()
	if err != nil {
		return nil, err
	}
	var out []*block.Block
	for _, rec := range recs {
		if rec.Block == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(rec.Block)
		if err != nil {
			return nil, errors.Wrap(err, "transport: corrupt block encoding")
		}
		blk, err := block.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, blk)
	}
	return out, nil
}

// GetUserHistoryByUserIDs implements Transport. The fake file log is not
// indexed server-side, so it returns the full log and leaves filtering to
// the caller's verifiers, same as Fake.
func (f *File) GetUserHistoryByUserIDs(_ context.Context, _ [][block.IDSize]byte) ([]*block.Block, error) {
	return f.allBlocks()
}

// GetUserHistoryByDeviceIDs implements Transport.
func (f *File) GetUserHistoryByDeviceIDs(_ context.Context, _ [][block.IDSize]byte) ([]*block.Block, error) {
	return f.allBlocks()
}

// GetGroupsBlocksByIDs implements Transport.
func (f *File) GetGroupsBlocksByIDs(_ context.Context, _ [][block.IDSize]byte) ([]*block.Block, error) {
	return f.allBlocks()
}

// GetGroupsBlockByPublicEncryptionKey implements Transport.
func (f *File) GetGroupsBlockByPublicEncryptionKey(_ context.Context, _ [block.EncryptionKeySize]byte) ([]*block.Block, error) {
	return f.allBlocks()
}

// SetProvisionalIdentity appends a provisional-identity seed record so a
// later GetProvisionalIdentityPublicKeys call (possibly from a different
// process) can find it.
func (f *File) SetProvisionalIdentity(target string, keys ProvisionalIdentityKeys) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "transport: failed to open block log for append")
	}
	defer file.Close()

	rec := fileRecord{ProvisionalTarget: target, ProvisionalKeys: &keys}
	return json.NewEncoder(file).Encode(rec)
}

// GetProvisionalIdentityPublicKeys implements Transport.
func (f *File) GetProvisionalIdentityPublicKeys(_ context.Context, targets []string) ([]ProvisionalIdentityKeys, error) {
	recs, err := f.readAll()
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	var out []ProvisionalIdentityKeys
	for _, rec := range recs {
		if rec.ProvisionalTarget != "" && rec.ProvisionalKeys != nil && want[rec.ProvisionalTarget] {
			out = append(out, *rec.ProvisionalKeys)
		}
	}
	return out, nil
}
