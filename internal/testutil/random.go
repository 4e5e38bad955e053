package testutil

import (
	"encoding/binary"
	"sync"
)

// SequentialRandom is an io.Reader that stands in for crypto/rand in tests.
//
// It yields 16-byte blocks whose last eight bytes hold a big-endian counter
// starting at 1, so the n-th minted rule id is
// 00000000-0000-0000-0000-00000000000n (in hex). Reads of any size are
// served from the same stream.
type SequentialRandom struct {
	mu      sync.Mutex
	n       uint64
	pending []byte
}

// NewSequentialRandom returns a reader whose first block carries counter 1.
func NewSequentialRandom() *SequentialRandom {
	return &SequentialRandom{}
}

// Read fills p from the block stream. It never fails.
func (r *SequentialRandom) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for written < len(p) {
		if len(r.pending) == 0 {
			r.n++
			var block [16]byte
			binary.BigEndian.PutUint64(block[8:], r.n)
			r.pending = block[:]
		}
		c := copy(p[written:], r.pending)
		r.pending = r.pending[c:]
		written += c
	}
	return written, nil
}

// Blocks returns how many blocks have been started.
func (r *SequentialRandom) Blocks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// RepeatRandom yields the same block forever. Tests use it to force id
// collisions.
type RepeatRandom struct {
	Block [16]byte
}

// Read fills p by repeating Block.
func (r RepeatRandom) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.Block[i%len(r.Block)]
	}
	return len(p), nil
}

// FailingRandom returns Err from every Read.
type FailingRandom struct {
	Err error
}

// Read implements io.Reader.
func (r FailingRandom) Read([]byte) (int, error) {
	return 0, r.Err
}
