package chain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	cmtsync "github.com/stratis-go/fullnode/libs/sync"
)

// ErrNotLinked is returned when a header does not build on the current tip.
var ErrNotLinked = errors.New("header does not link to chain tip")

// View is a read-only, possibly stale snapshot of the best header chain.
// Implementations must be safe for concurrent use.
type View interface {
	// HeaderAt returns the header at height, or nil if height is outside
	// [0, Height()].
	HeaderAt(height int64) *Header
	// HeaderByHash returns the header with the given hash, or nil.
	HeaderByHash(hash chainhash.Hash) *Header
	// Contains reports whether hash is part of the chain.
	Contains(hash chainhash.Hash) bool
	// Height returns the height of the tip.
	Height() int64
	// Tip returns the last header.
	Tip() *Header
}

// Chain is an in-memory header chain indexed by height and hash.
type Chain struct {
	mtx     cmtsync.RWMutex
	headers []*Header
	index   map[chainhash.Hash]*Header
}

var _ View = (*Chain)(nil)

// NewChain returns a chain holding only genesis at height 0.
func NewChain(genesis wire.BlockHeader) *Chain {
	g := NewHeader(genesis, 0)
	return &Chain{
		headers: []*Header{g},
		index:   map[chainhash.Hash]*Header{g.Hash(): g},
	}
}

// Append extends the chain by one header. The header must reference the
// current tip as its predecessor.
func (c *Chain) Append(bh wire.BlockHeader) (*Header, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	tip := c.headers[len(c.headers)-1]
	if bh.PrevBlock != tip.Hash() {
		return nil, fmt.Errorf("%w: prev %v, tip %v", ErrNotLinked, bh.PrevBlock, tip)
	}

	h := NewHeader(bh, tip.Height+1)
	c.headers = append(c.headers, h)
	c.index[h.Hash()] = h
	return h, nil
}

// Truncate drops every header above height. Genesis is always kept.
func (c *Chain) Truncate(height int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if height < 0 {
		height = 0
	}
	for int64(len(c.headers)-1) > height {
		last := c.headers[len(c.headers)-1]
		delete(c.index, last.Hash())
		c.headers = c.headers[:len(c.headers)-1]
	}
}

func (c *Chain) HeaderAt(height int64) *Header {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if height < 0 || height >= int64(len(c.headers)) {
		return nil
	}
	return c.headers[height]
}

func (c *Chain) HeaderByHash(hash chainhash.Hash) *Header {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.index[hash]
}

func (c *Chain) Contains(hash chainhash.Hash) bool {
	return c.HeaderByHash(hash) != nil
}

func (c *Chain) Height() int64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return int64(len(c.headers) - 1)
}

func (c *Chain) Tip() *Header {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.headers[len(c.headers)-1]
}
