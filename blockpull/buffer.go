package blockpull

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/stratis-go/fullnode/libs/log"
	cmtsync "github.com/stratis-go/fullnode/libs/sync"
)

// DownloadedBlock is a block waiting in the buffer for the consumer.
type DownloadedBlock struct {
	Block      *btcutil.Block
	Length     int // serialized size in bytes
	ReceivedAt time.Time
}

// blockBuffer holds downloaded blocks, keyed by hash, until the consumer
// takes them. The map and the byte total only ever change together under
// mtx, so size always equals the sum of the lengths of the entries.
type blockBuffer struct {
	logger log.Logger

	mtx     cmtsync.Mutex
	blocks  map[chainhash.Hash]*DownloadedBlock
	size    int64
	maxSize int64

	pushed   *signal // a block was added
	consumed *signal // bytes were freed
}

func newBlockBuffer(maxSize int64, logger log.Logger) *blockBuffer {
	return &blockBuffer{
		logger:   logger,
		blocks:   make(map[chainhash.Hash]*DownloadedBlock),
		maxSize:  maxSize,
		pushed:   newSignal(),
		consumed: newSignal(),
	}
}

// add stores b under hash unless that would bring the total to maxSize or
// above. urgent skips the ceiling. It returns false when the caller has to
// wait for space. A hash already buffered is accepted and left as is.
func (bb *blockBuffer) add(hash chainhash.Hash, b *DownloadedBlock, urgent bool) bool {
	bb.mtx.Lock()
	if _, exists := bb.blocks[hash]; exists {
		bb.mtx.Unlock()
		bb.logger.Debug("Block already in buffer", "hash", hash)
		return true
	}
	if !urgent && bb.size+int64(b.Length) >= bb.maxSize {
		bb.mtx.Unlock()
		return false
	}
	bb.blocks[hash] = b
	bb.size += int64(b.Length)
	numBlocks, size := len(bb.blocks), bb.size
	bb.mtx.Unlock()

	bb.pushed.broadcast()

	bb.logger.Debug("Block added to buffer",
		"hash", hash,
		"length", b.Length,
		"urgent", urgent,
		"buffer_blocks", numBlocks,
		"buffer_bytes", size)
	return true
}

// take removes and returns the block stored under hash, or nil. Waking
// producers is left to the caller.
func (bb *blockBuffer) take(hash chainhash.Hash) *DownloadedBlock {
	bb.mtx.Lock()
	defer bb.mtx.Unlock()

	b, ok := bb.blocks[hash]
	if !ok {
		return nil
	}
	delete(bb.blocks, hash)
	bb.size -= int64(b.Length)
	return b
}

// prune drops every block for which keep returns false and returns how
// many were dropped.
func (bb *blockBuffer) prune(keep func(chainhash.Hash) bool) int {
	bb.mtx.Lock()
	removed := 0
	for hash, b := range bb.blocks {
		if keep(hash) {
			continue
		}
		delete(bb.blocks, hash)
		bb.size -= int64(b.Length)
		removed++
	}
	bb.mtx.Unlock()

	if removed > 0 {
		bb.consumed.broadcast()
		bb.logger.Info("Pruned blocks from buffer", "count", removed)
	}
	return removed
}

func (bb *blockBuffer) has(hash chainhash.Hash) bool {
	bb.mtx.Lock()
	defer bb.mtx.Unlock()
	_, ok := bb.blocks[hash]
	return ok
}

// Stats returns the number of buffered blocks and their total size.
func (bb *blockBuffer) Stats() (numBlocks int, size int64) {
	bb.mtx.Lock()
	defer bb.mtx.Unlock()
	return len(bb.blocks), bb.size
}
