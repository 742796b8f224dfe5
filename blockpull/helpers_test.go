package blockpull

import (
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/stratis-go/fullnode/chain"
	"github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/log"
	"github.com/stratis-go/fullnode/test/factory"
)

type mockLoader struct {
	mtx   sync.Mutex
	view  chain.View
	err   error
	calls int
}

func (l *mockLoader) ReloadChain() (chain.View, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.view, nil
}

func (l *mockLoader) setView(view chain.View) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.view = view
}

func (l *mockLoader) Calls() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.calls
}

type recordingRequester struct {
	mtx       sync.Mutex
	requests  [][]*chain.Header
	onRequest func([]*chain.Header)
}

func (r *recordingRequester) RequestBlocks(headers []*chain.Header) {
	r.mtx.Lock()
	r.requests = append(r.requests, headers)
	onRequest := r.onRequest
	r.mtx.Unlock()

	if onRequest != nil {
		onRequest(headers)
	}
}

// Ranges returns the first and last height of every request.
func (r *recordingRequester) Ranges() [][2]int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	out := make([][2]int64, 0, len(r.requests))
	for _, headers := range r.requests {
		out = append(out, [2]int64{headers[0].Height, headers[len(headers)-1].Height})
	}
	return out
}

// Heights returns every requested height in request order.
func (r *recordingRequester) Heights() []int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var out []int64
	for _, headers := range r.requests {
		for _, h := range headers {
			out = append(out, h.Height)
		}
	}
	return out
}

type testEnv struct {
	puller    *LookaheadPuller
	loader    *mockLoader
	requester *recordingRequester
	chain     *chain.Chain
	blocks    []*btcutil.Block
	byHash    map[chainhash.Hash]*btcutil.Block
}

func newTestEnv(t *testing.T, numBlocks int, mutate func(*config.BlockPullConfig)) *testEnv {
	t.Helper()

	blocks := factory.MakeBlocks(numBlocks, 1)
	c := factory.MakeChain(blocks)

	cfg := config.TestBlockPullConfig()
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		loader:    &mockLoader{view: c},
		requester: &recordingRequester{},
		chain:     c,
		blocks:    blocks,
		byHash:    make(map[chainhash.Hash]*btcutil.Block),
	}
	for _, b := range blocks {
		env.byHash[*b.Hash()] = b
	}
	env.puller = NewLookaheadPuller(cfg, env.loader, env.requester, log.NewNopLogger())
	require.NoError(t, env.puller.SetLocation(c.HeaderAt(0)))
	return env
}

// addFork registers a branch that leaves the env chain above forkHeight and
// returns its blocks, genesis included.
func (env *testEnv) addFork(forkHeight int64, n int, tag byte) []*btcutil.Block {
	fork := factory.ExtendBlocks(env.blocks[:forkHeight+1], n, 1, tag)
	for _, b := range fork {
		env.byHash[*b.Hash()] = b
	}
	return fork
}

func (env *testEnv) push(t *testing.T, height int64) {
	t.Helper()
	b := env.blocks[height]
	require.NoError(t, env.puller.PushBlock(context.Background(), factory.BlockSize(b), b))
}

func (env *testEnv) heightOf(b *btcutil.Block) int64 {
	return env.puller.Chain().HeaderByHash(*b.Hash()).Height
}

// bufferInvariant checks that the byte total equals the sum of entries.
func bufferInvariant(t *testing.T, bb *blockBuffer) {
	t.Helper()
	bb.mtx.Lock()
	defer bb.mtx.Unlock()

	var sum int64
	for _, b := range bb.blocks {
		sum += int64(b.Length)
	}
	require.Equal(t, sum, bb.size)
}
