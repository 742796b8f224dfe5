package blockpull

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stratis-go/fullnode/chain"
	"github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/log"
	"github.com/stratis-go/fullnode/test/factory"
)

func TestNextBlockWarmUpAndRefill(t *testing.T) {
	env := newTestEnv(t, 100, nil)
	p := env.puller
	assert.Equal(t, StateUninitialized, p.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	heights := make(chan int64, 5)
	errCh := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			b, err := p.NextBlock(ctx)
			if err != nil {
				errCh <- err
				return
			}
			heights <- env.heightOf(b)
		}
	}()

	require.Eventually(t, func() bool { return len(env.requester.Ranges()) == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, [][2]int64{{1, 5}, {6, 10}}, env.requester.Ranges())
	assert.Equal(t, StateSteady, p.State())

	for h := int64(5); h >= 1; h-- {
		env.push(t, h)
	}

	for want := int64(1); want <= 5; want++ {
		select {
		case got := <-heights:
			assert.Equal(t, want, got)
		case err := <-errCh:
			t.Fatal(err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for blocks")
		}
	}

	assert.EqualValues(t, 5, p.Location().Height)
	assert.Equal(t, [][2]int64{{1, 5}, {6, 10}, {11, 15}}, env.requester.Ranges())
	assert.Equal(t, 1, env.loader.Calls())
}

func TestNextBlockOrderWithRandomDelivery(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	const numBlocks = 60
	sampleSize := factory.BlockSize(factory.MakeBlocks(1, 1)[1])

	env := newTestEnv(t, 80, func(cfg *config.BlockPullConfig) {
		cfg.Lookahead = 5
		// room for a few blocks only, so producers hit the ceiling
		cfg.MaxBufferedBytes = int64(3*sampleSize + 1)
	})
	p := env.puller

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.requester.onRequest = func(headers []*chain.Header) {
		for _, h := range headers {
			b := env.byHash[h.Hash()]
			delay := time.Duration(rand.Intn(5)) * time.Millisecond
			go func() {
				time.Sleep(delay)
				if err := p.PushBlock(ctx, factory.BlockSize(b), b); err != nil && !errors.Is(err, context.Canceled) {
					t.Errorf("push failed: %v", err)
				}
			}()
		}
	}

	for want := int64(1); want <= numBlocks; want++ {
		b, err := p.NextBlock(ctx)
		require.NoError(t, err)
		require.Equal(t, want, p.Chain().HeaderByHash(*b.Hash()).Height)
		require.Equal(t, want, p.Location().Height)
		bufferInvariant(t, p.buffer)
	}

	seen := make(map[int64]bool)
	for _, h := range env.requester.Heights() {
		require.False(t, seen[h], "height %d requested twice", h)
		seen[h] = true
	}
	cancel()
}

func TestPushBlockBackpressure(t *testing.T) {
	env := newTestEnv(t, 20, func(cfg *config.BlockPullConfig) {
		cfg.MaxBufferedBytes = 1000
		cfg.WaitTimeout = 5 * time.Second
	})
	p := env.puller
	require.NoError(t, p.reloadChain())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for h := 5; h <= 8; h++ {
		require.NoError(t, p.PushBlock(ctx, 200, env.blocks[h]))
	}

	// 800 + 200 reaches the ceiling, height 2 is not next
	pushed := make(chan error, 1)
	go func() { pushed <- p.PushBlock(ctx, 200, env.blocks[2]) }()
	require.Eventually(t, p.IsFull, time.Second, 5*time.Millisecond)
	select {
	case err := <-pushed:
		t.Fatalf("push returned while buffer full: %v", err)
	default:
	}

	// height 1 is next and is admitted over the ceiling
	start := time.Now()
	require.NoError(t, p.PushBlock(ctx, 500, env.blocks[1]))
	assert.Less(t, time.Since(start), time.Second)
	_, size := p.buffer.Stats()
	assert.EqualValues(t, 1300, size)

	b, err := p.nextBlockCore(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.blocks[1].Hash(), b.Hash())

	// height 2 became next and the waiting producer gets through
	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer still waiting after consumer advanced")
	}
	assert.False(t, p.IsFull())

	b, err = p.nextBlockCore(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.blocks[2].Hash(), b.Hash())
	bufferInvariant(t, p.buffer)
}

func TestPushBlockCancel(t *testing.T) {
	env := newTestEnv(t, 20, func(cfg *config.BlockPullConfig) {
		cfg.MaxBufferedBytes = 100
	})
	p := env.puller
	require.NoError(t, p.reloadChain())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := p.PushBlock(ctx, 500, env.blocks[3])
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, p.IsFull())
}

func TestPushBlockErrors(t *testing.T) {
	env := newTestEnv(t, 10, nil)
	p := env.puller
	ctx := context.Background()

	err := p.PushBlock(ctx, 100, env.blocks[1])
	assert.ErrorIs(t, err, ErrChainNotLoaded)

	require.NoError(t, p.reloadChain())
	stranger := factory.MakeBlock(*env.blocks[3].Hash(), 4, 1, 7)
	err = p.PushBlock(ctx, 100, stranger)
	assert.ErrorIs(t, err, ErrUnknownBlock)

	err = p.PushBlock(ctx, -100, env.blocks[2])
	assert.ErrorIs(t, err, ErrInvalidLength)
	numBlocks, size := p.buffer.Stats()
	assert.Zero(t, numBlocks)
	assert.Zero(t, size)
}

func TestPushBlockWaitingWhileChainReloads(t *testing.T) {
	env := newTestEnv(t, 20, func(cfg *config.BlockPullConfig) {
		cfg.MaxBufferedBytes = 1000
		cfg.WaitTimeout = 5 * time.Second
	})
	p := env.puller
	require.NoError(t, p.reloadChain())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for h := 5; h <= 8; h++ {
		require.NoError(t, p.PushBlock(ctx, 200, env.blocks[h]))
	}
	pushed := make(chan error, 1)
	go func() { pushed <- p.PushBlock(ctx, 200, env.blocks[9]) }()
	require.Eventually(t, p.IsFull, time.Second, 5*time.Millisecond)

	// block 3 is rejected and the chain moves to a branch above height 2
	fork := env.addFork(2, 10, 1)
	env.loader.setView(factory.MakeChain(fork))
	require.NoError(t, p.Reject(env.blocks[3]))

	select {
	case err := <-pushed:
		assert.ErrorIs(t, err, ErrUnknownBlock)
	case <-time.After(time.Second):
		t.Fatal("producer still waiting after reload")
	}
	assert.False(t, p.IsFull())
	assert.False(t, p.buffer.has(*env.blocks[9].Hash()))
	numBlocks, size := p.buffer.Stats()
	assert.Zero(t, numBlocks)
	assert.Zero(t, size)
	bufferInvariant(t, p.buffer)
}

func TestPushBlockDropsConsumed(t *testing.T) {
	env := newTestEnv(t, 10, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())
	require.NoError(t, p.SetLocation(env.chain.HeaderAt(4)))

	require.NoError(t, p.PushBlock(context.Background(), 100, env.blocks[3]))
	require.NoError(t, p.PushBlock(context.Background(), 100, env.blocks[4]))
	numBlocks, size := p.buffer.Stats()
	assert.Zero(t, numBlocks)
	assert.Zero(t, size)
}

func TestPushBlockDuplicate(t *testing.T) {
	env := newTestEnv(t, 10, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())

	env.push(t, 3)
	env.push(t, 3)
	numBlocks, size := p.buffer.Stats()
	assert.Equal(t, 1, numBlocks)
	assert.EqualValues(t, factory.BlockSize(env.blocks[3]), size)
}

func TestNextBlockStalling(t *testing.T) {
	env := newTestEnv(t, 10, nil)
	p := env.puller

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan *btcutil.Block, 1)
	go func() {
		b, err := p.NextBlock(ctx)
		if err == nil {
			done <- b
		}
	}()

	require.Eventually(t, p.IsStalling, time.Second, 5*time.Millisecond)
	assert.True(t, p.Status().Stalling)

	env.push(t, 1)
	select {
	case b := <-done:
		assert.Equal(t, env.blocks[1].Hash(), b.Hash())
	case <-ctx.Done():
		t.Fatal("timed out")
	}
	assert.False(t, p.IsStalling())
}

func TestNextBlockErrors(t *testing.T) {
	blocks := factory.MakeBlocks(5, 1)
	loader := &mockLoader{view: factory.MakeChain(blocks)}
	p := NewLookaheadPuller(config.TestBlockPullConfig(), loader, &recordingRequester{}, log.NewNopLogger())

	_, err := p.NextBlock(context.Background())
	assert.ErrorIs(t, err, ErrLocationNotSet)
	assert.ErrorIs(t, p.SetLocation(nil), ErrNilLocation)
	assert.Zero(t, loader.Calls())

	loadErr := errors.New("db closed")
	loader.err = loadErr
	require.NoError(t, p.SetLocation(loader.view.(*chain.Chain).HeaderAt(0)))
	_, err = p.NextBlock(context.Background())
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, StateUninitialized, p.State())
}

func TestSetLocationBackwardRefetches(t *testing.T) {
	env := newTestEnv(t, 30, nil)
	p := env.puller
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for h := int64(1); h <= 3; h++ {
		env.push(t, h)
	}
	for want := int64(1); want <= 3; want++ {
		b, err := p.NextBlock(ctx)
		require.NoError(t, err)
		require.Equal(t, want, env.heightOf(b))
	}
	require.EqualValues(t, 10, p.LookaheadLocation().Height)

	// the consumer rolls back to genesis while the window is still on chain
	require.NoError(t, p.SetLocation(env.chain.HeaderAt(0)))
	assert.Nil(t, p.LookaheadLocation())

	before := len(env.requester.Ranges())
	env.push(t, 1)
	b, err := p.NextBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.blocks[1].Hash(), b.Hash())

	ranges := env.requester.Ranges()[before:]
	require.GreaterOrEqual(t, len(ranges), 2)
	assert.Equal(t, [2]int64{1, 5}, ranges[0])
	assert.Equal(t, [2]int64{6, 10}, ranges[1])
}

func TestNextBlockContextCanceled(t *testing.T) {
	env := newTestEnv(t, 10, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := env.puller.NextBlock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 0, env.puller.Location().Height)
}

func TestRejectReloadsOnlyForChainBlocks(t *testing.T) {
	env := newTestEnv(t, 10, nil)
	p := env.puller
	require.NoError(t, p.reloadChain())
	require.Equal(t, 1, env.loader.Calls())

	require.NoError(t, p.Reject(env.blocks[4]))
	assert.Equal(t, 2, env.loader.Calls())
	assert.True(t, p.IsRejected(*env.blocks[4].Hash()))

	stranger := factory.MakeBlock(*env.blocks[3].Hash(), 4, 1, 7)
	require.NoError(t, p.Reject(stranger))
	assert.Equal(t, 2, env.loader.Calls())
	assert.True(t, p.IsRejected(*stranger.Hash()))
	assert.False(t, p.IsRejected(*env.blocks[5].Hash()))
	assert.Equal(t, 2, p.Status().Rejected)
}

func TestRejectSwitchesToCorrectedChain(t *testing.T) {
	env := newTestEnv(t, 20, nil)
	p := env.puller
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// buffer a few blocks ahead before the first NextBlock
	require.NoError(t, p.reloadChain())
	for h := int64(1); h <= 6; h++ {
		env.push(t, h)
	}
	for want := int64(1); want <= 3; want++ {
		b, err := p.NextBlock(ctx)
		require.NoError(t, err)
		require.Equal(t, want, env.heightOf(b))
	}

	// block 3 turns out invalid, the header source moves to another branch
	fork := env.addFork(2, 18, 1)
	env.loader.setView(factory.MakeChain(fork))
	require.NoError(t, p.Reject(env.blocks[3]))
	require.NoError(t, p.SetLocation(p.Chain().HeaderAt(2)))

	// buffered blocks of the old branch are gone
	numBlocks, _ := p.buffer.Stats()
	assert.Zero(t, numBlocks)
	bufferInvariant(t, p.buffer)
	assert.Equal(t, StateWarmingUp, p.State())

	before := len(env.requester.Ranges())
	require.NoError(t, p.PushBlock(ctx, factory.BlockSize(fork[3]), fork[3]))
	b, err := p.NextBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, fork[3].Hash(), b.Hash())
	assert.EqualValues(t, 3, p.Location().Height)

	ranges := env.requester.Ranges()[before:]
	require.GreaterOrEqual(t, len(ranges), 2)
	assert.Equal(t, [2]int64{3, 7}, ranges[0])
	assert.Equal(t, [2]int64{8, 12}, ranges[1])
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, 20, nil)
	p := env.puller

	st := p.Status()
	assert.Equal(t, StateUninitialized, st.State)
	assert.EqualValues(t, 0, st.LocationHeight)
	assert.EqualValues(t, -1, st.LookaheadHeight)

	require.NoError(t, p.reloadChain())
	env.push(t, 1)
	env.push(t, 2)
	b, err := p.NextBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, env.blocks[1].Hash(), b.Hash())

	st = p.Status()
	assert.Equal(t, StateSteady, st.State)
	assert.EqualValues(t, 1, st.LocationHeight)
	assert.EqualValues(t, 10, st.LookaheadHeight)
	assert.Equal(t, 1, st.BufferedBlocks)
	assert.EqualValues(t, factory.BlockSize(env.blocks[2]), st.BufferedBytes)
	assert.Equal(t, factory.BlockSize(env.blocks[1]), st.AvgBlockSize)
	assert.Equal(t, "steady", st.State.String())
}

func TestNextBlockTracesStalls(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	env := newTestEnv(t, 10, nil)
	p := env.puller
	p.tracer = tp.Tracer("test")
	require.NoError(t, p.reloadChain())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env.push(t, 1)
	_, err := p.NextBlock(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.NextBlock(ctx)
		done <- err
	}()
	require.Eventually(t, p.IsStalling, time.Second, 5*time.Millisecond)
	env.push(t, 2)
	require.NoError(t, <-done)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = p.NextBlock(canceled)
	require.ErrorIs(t, err, context.Canceled)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	for _, span := range spans {
		assert.Equal(t, "blockpull.NextBlock", span.Name())
	}

	height := func(span sdktrace.ReadOnlySpan) int64 {
		for _, kv := range span.Attributes() {
			if kv.Key == "height" {
				return kv.Value.AsInt64()
			}
		}
		return -1
	}
	assert.EqualValues(t, 1, height(spans[0]))
	assert.Empty(t, spans[0].Events())

	assert.EqualValues(t, 2, height(spans[1]))
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "stalling", spans[1].Events()[0].Name)

	assert.Equal(t, codes.Error, spans[2].Status().Code)
}
