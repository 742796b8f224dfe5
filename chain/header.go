package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Header is a block header positioned on a chain. Headers are owned by the
// Chain that built them and are never mutated afterwards.
type Header struct {
	wire.BlockHeader

	Height int64
	hash   chainhash.Hash
}

// NewHeader computes the hash of bh once and pins it at height.
func NewHeader(bh wire.BlockHeader, height int64) *Header {
	return &Header{
		BlockHeader: bh,
		Height:      height,
		hash:        bh.BlockHash(),
	}
}

// Hash returns the double-SHA256 hash of the header.
func (h *Header) Hash() chainhash.Hash {
	return h.hash
}

// String returns a short human readable form, e.g. "42:00000000a1b2c3d4".
func (h *Header) String() string {
	if h == nil {
		return "nil-Header"
	}
	return fmt.Sprintf("%d:%s", h.Height, h.hash.String()[:16])
}
