package blockpull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/log"
	"github.com/stratis-go/fullnode/test/factory"
)

func TestRequestNextWindowRanges(t *testing.T) {
	env := newTestEnv(t, 100, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.requestNextWindow())
	}
	assert.Equal(t, [][2]int64{{1, 5}, {6, 10}, {11, 15}}, env.requester.Ranges())
	assert.EqualValues(t, 15, p.LookaheadLocation().Height)

	// consumer inside the window: continue from the lookahead
	p.location.Store(env.chain.HeaderAt(12))
	require.NoError(t, p.requestNextWindow())

	// consumer past the window: continue from the location
	p.location.Store(env.chain.HeaderAt(30))
	require.NoError(t, p.requestNextWindow())

	assert.Equal(t, [][2]int64{{1, 5}, {6, 10}, {11, 15}, {16, 20}, {31, 35}}, env.requester.Ranges())
}

func TestRequestNextWindowNeverOverlaps(t *testing.T) {
	env := newTestEnv(t, 100, func(cfg *config.BlockPullConfig) { cfg.Lookahead = 7 })
	p := env.puller
	require.NoError(t, p.reloadChain())

	for loc := int64(0); loc < 60; loc += 3 {
		p.location.Store(env.chain.HeaderAt(loc))
		require.NoError(t, p.requestNextWindow())
	}

	seen := make(map[int64]bool)
	for _, h := range env.requester.Heights() {
		assert.False(t, seen[h], "height %d requested twice", h)
		seen[h] = true
	}
}

func TestSetLocationRestartsWindow(t *testing.T) {
	env := newTestEnv(t, 100, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.requestNextWindow())
	}
	require.EqualValues(t, 15, p.LookaheadLocation().Height)

	require.NoError(t, p.SetLocation(env.chain.HeaderAt(12)))
	assert.Nil(t, p.LookaheadLocation())
	assert.Equal(t, StateWarmingUp, p.State())
	assert.EqualValues(t, -1, p.Status().LookaheadHeight)

	require.NoError(t, p.requestNextWindow())
	assert.Equal(t, [2]int64{13, 17}, env.requester.Ranges()[3])
}

func TestRequestNextWindowClampsToTip(t *testing.T) {
	env := newTestEnv(t, 7, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.requestNextWindow())
	}
	assert.Equal(t, [][2]int64{{1, 5}, {6, 7}}, env.requester.Ranges())
	assert.EqualValues(t, 7, p.LookaheadLocation().Height)
}

func TestRequestNextWindowLocationNotOnChain(t *testing.T) {
	env := newTestEnv(t, 20, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())

	other := factory.MakeChain(factory.ExtendBlocks(env.blocks[:3], 10, 1, 9))
	require.NoError(t, p.SetLocation(other.HeaderAt(8)))

	require.NoError(t, p.requestNextWindow())
	assert.Empty(t, env.requester.Ranges())
	assert.Nil(t, p.LookaheadLocation())
}

func TestRequestNextWindowWithoutLocation(t *testing.T) {
	blocks := factory.MakeBlocks(5, 1)
	loader := &mockLoader{view: factory.MakeChain(blocks)}
	p := NewLookaheadPuller(config.TestBlockPullConfig(), loader, &recordingRequester{}, log.NewNopLogger())

	assert.ErrorIs(t, p.requestNextWindow(), ErrLocationNotSet)
}

func TestRequestNextWindowBeforeChainLoaded(t *testing.T) {
	env := newTestEnv(t, 20, nil)

	require.NoError(t, env.puller.requestNextWindow())
	assert.Empty(t, env.requester.Ranges())
	assert.Zero(t, env.loader.Calls())
}

func TestReloadDiscardsLookaheadOffChain(t *testing.T) {
	env := newTestEnv(t, 20, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())
	require.NoError(t, p.requestNextWindow())
	require.NoError(t, p.requestNextWindow())
	require.EqualValues(t, 10, p.LookaheadLocation().Height)

	fork := env.addFork(3, 17, 1)
	env.loader.setView(factory.MakeChain(fork))
	require.NoError(t, p.reloadChain())
	assert.Nil(t, p.LookaheadLocation())
	assert.Equal(t, StateWarmingUp, p.State())

	require.NoError(t, p.requestNextWindow())
	ranges := env.requester.Ranges()
	assert.Equal(t, [2]int64{1, 5}, ranges[len(ranges)-1])

	env.requester.mtx.Lock()
	last := env.requester.requests[len(env.requester.requests)-1]
	env.requester.mtx.Unlock()
	assert.Equal(t, *fork[4].Hash(), last[3].Hash())
	assert.Equal(t, *fork[5].Hash(), last[4].Hash())
}

func TestReloadKeepsLookaheadOnChain(t *testing.T) {
	env := newTestEnv(t, 20, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())
	require.NoError(t, p.requestNextWindow())
	require.NoError(t, p.requestNextWindow())

	fork := env.addFork(12, 10, 1)
	env.loader.setView(factory.MakeChain(fork))
	require.NoError(t, p.reloadChain())

	require.NotNil(t, p.LookaheadLocation())
	assert.EqualValues(t, 10, p.LookaheadLocation().Height)
}
