package chain_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratis-go/fullnode/chain"
	"github.com/stratis-go/fullnode/test/factory"
)

func TestChainIndexesByHeightAndHash(t *testing.T) {
	blocks := factory.MakeBlocks(10, 1)
	c := factory.MakeChain(blocks)

	assert.Equal(t, int64(10), c.Height())
	assert.Equal(t, *blocks[10].Hash(), c.Tip().Hash())

	for h, b := range blocks {
		header := c.HeaderAt(int64(h))
		require.NotNil(t, header)
		assert.Equal(t, int64(h), header.Height)
		assert.Equal(t, *b.Hash(), header.Hash())
		assert.True(t, c.Contains(*b.Hash()))
		assert.Same(t, header, c.HeaderByHash(*b.Hash()))
	}

	assert.Nil(t, c.HeaderAt(-1))
	assert.Nil(t, c.HeaderAt(11))
	assert.False(t, c.Contains(chainhash.Hash{1}))
}

func TestChainAppendRequiresLink(t *testing.T) {
	blocks := factory.MakeBlocks(3, 1)
	c := factory.MakeChain(blocks[:2])

	_, err := c.Append(blocks[3].MsgBlock().Header)
	require.ErrorIs(t, err, chain.ErrNotLinked)
	assert.Equal(t, int64(1), c.Height())

	h, err := c.Append(blocks[2].MsgBlock().Header)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.Height)
}

func TestChainTruncate(t *testing.T) {
	blocks := factory.MakeBlocks(5, 1)
	c := factory.MakeChain(blocks)

	c.Truncate(2)
	assert.Equal(t, int64(2), c.Height())
	assert.False(t, c.Contains(*blocks[3].Hash()))
	assert.True(t, c.Contains(*blocks[2].Hash()))

	fork := factory.ExtendBlocks(blocks[:3], 4, 1, 7)
	for _, b := range fork[3:] {
		_, err := c.Append(b.MsgBlock().Header)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(6), c.Height())
	assert.NotEqual(t, *blocks[3].Hash(), c.HeaderAt(3).Hash())

	c.Truncate(-5)
	assert.Equal(t, int64(0), c.Height())
}

func TestHeaderString(t *testing.T) {
	blocks := factory.MakeBlocks(1, 1)
	h := chain.NewHeader(blocks[1].MsgBlock().Header, 1)
	assert.Equal(t, "1:"+blocks[1].Hash().String()[:16], h.String())

	var nilHeader *chain.Header
	assert.Equal(t, "nil-Header", nilHeader.String())
}
