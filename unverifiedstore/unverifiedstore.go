// Package unverifiedstore implements the "unverified" table:
// blocks that arrived before the block they depend on, queued per subject
// (a user id or group id) so the verifier can promote them in FIFO order
// once their dependency verifies.
package unverifiedstore

import (
	"fmt"
	"sync"

	"github.com/golang-collections/collections/queue"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/localstore"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
)

// pendingRow is the persisted form of one queued block.
type pendingRow struct {
	Subject string
	Seq     uint64
	Raw     []byte
}

func (p pendingRow) RowKey() string { return fmt.Sprintf("%s:%020d", p.Subject, p.Seq) }

// Store holds blocks that could not yet be verified, keyed by subject.
// The per-subject ordering is kept in an in-memory FIFO (golang-
// collections/collections/queue, a generic queue reached for instead of
// hand-rolling one); the table backing gives it durability across
// restarts.
type Store struct {
	mu      sync.Mutex
	table   *localstore.Table[pendingRow]
	queues  map[string]*queue.Queue
	nextSeq uint64
}

// New opens the unverified table within kv and replays any rows left over
// from a previous session into their per-subject queues.
func New(kv *versioned.KV) *Store {
	s := &Store{
		table:  localstore.NewTable[pendingRow](kv, "unverified"),
		queues: make(map[string]*queue.Queue),
	}
	rows, _ := s.table.Find(nil, func(a, b pendingRow) bool { return a.Seq < b.Seq }, 0)
	for _, row := range rows {
		s.enqueueLocked(row)
		if row.Seq >= s.nextSeq {
			s.nextSeq = row.Seq + 1
		}
	}
	return s
}

func (s *Store) enqueueLocked(row pendingRow) {
	q, ok := s.queues[row.Subject]
	if !ok {
		q = queue.New()
		s.queues[row.Subject] = q
	}
	q.Enqueue(row)
}

// Enqueue stores blk, keyed by subject, to be promoted later.
func (s *Store) Enqueue(subject string, blk *block.Block) error {
	raw, err := blk.Serialize()
	if err != nil {
		return errors.Wrap(err, "failed to serialize block for unverified queue")
	}

	s.mu.Lock()
	row := pendingRow{Subject: subject, Seq: s.nextSeq, Raw: raw}
	s.nextSeq++
	s.enqueueLocked(row)
	s.mu.Unlock()

	jww.TRACE.Printf("unverifiedstore: queued block index=%d nature=%s subject=%s",
		blk.Index, blk.Nature, subject)
	return s.table.Put(row)
}

// Drain removes and returns every block queued under subject, in the order
// they were enqueued. The caller is responsible for verifying each one;
// none of them are retried once drained, matching the "dropped, not
// retried" policy for failed blocks.
func (s *Store) Drain(subject string) ([]*block.Block, error) {
	s.mu.Lock()
	q, ok := s.queues[subject]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	delete(s.queues, subject)
	s.mu.Unlock()

	var blocks []*block.Block
	for q.Len() > 0 {
		row := q.Dequeue().(pendingRow)
		if err := s.table.Delete(row.RowKey()); err != nil {
			jww.WARN.Printf("unverifiedstore: failed to delete drained row %s: %v", row.RowKey(), err)
		}
		blk, err := block.Parse(row.Raw)
		if err != nil {
			jww.WARN.Printf("unverifiedstore: dropping corrupt queued block %s: %v", row.RowKey(), err)
			continue
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// Subjects lists every subject currently holding queued blocks.
func (s *Store) Subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.queues))
	for subject := range s.queues {
		out = append(out, subject)
	}
	return out
}
