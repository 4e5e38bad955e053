package ruleset

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/google/uuid"

	"github.com/roach88/ratelimits/internal/ir"
)

// IDGenerator mints rule ids from a source of secure random bytes.
//
// It is the only place that draws randomness. A draw is never repeated:
// a collision with a stored id is reported as an internal error, since it
// means the random source is broken.
type IDGenerator struct {
	rand io.Reader
}

// NewIDGenerator returns a generator reading from src, or from
// crypto/rand when src is nil.
func NewIDGenerator(src io.Reader) *IDGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &IDGenerator{rand: src}
}

// Mint draws 128 bits and checks that no stored rule already owns them.
func (g *IDGenerator) Mint(ctx context.Context, r Reader) (ir.RuleID, error) {
	var buf [16]byte
	if _, err := io.ReadFull(g.rand, buf[:]); err != nil {
		return ir.RuleID{}, newInternal(err, "failed to generate random bytes")
	}

	u, err := uuid.FromBytes(buf[:])
	if err != nil {
		return ir.RuleID{}, newInternal(err, "failed to create uuid from bytes")
	}
	id := ir.RuleID(u)

	_, exists, err := r.Rule(ctx, id)
	if err != nil {
		return ir.RuleID{}, newInternal(err, "lookup rule %s", id)
	}
	if exists {
		return ir.RuleID{}, newInternal(nil, "failed to generate a new uuid %s, please retry the operation", id)
	}

	return id, nil
}
