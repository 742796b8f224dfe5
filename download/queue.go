package download

import (
	"container/heap"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/stratis-go/fullnode/chain"
)

// headerQueue hands out pending headers lowest height first, so the block
// the consumer needs next is never stuck behind blocks it needs later.
// It is not safe for concurrent use.
type headerQueue struct {
	items  headerHeap
	queued map[chainhash.Hash]struct{}
}

func newHeaderQueue() *headerQueue {
	return &headerQueue{queued: make(map[chainhash.Hash]struct{})}
}

// push adds h unless it is already queued.
func (q *headerQueue) push(h *chain.Header) bool {
	hash := h.Hash()
	if _, ok := q.queued[hash]; ok {
		return false
	}
	q.queued[hash] = struct{}{}
	heap.Push(&q.items, h)
	return true
}

func (q *headerQueue) pop() (*chain.Header, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	h := heap.Pop(&q.items).(*chain.Header)
	delete(q.queued, h.Hash())
	return h, true
}

func (q *headerQueue) len() int {
	return len(q.items)
}

type headerHeap []*chain.Header

func (hh headerHeap) Len() int           { return len(hh) }
func (hh headerHeap) Less(i, j int) bool { return hh[i].Height < hh[j].Height }
func (hh headerHeap) Swap(i, j int)      { hh[i], hh[j] = hh[j], hh[i] }

func (hh *headerHeap) Push(x any) {
	*hh = append(*hh, x.(*chain.Header))
}

func (hh *headerHeap) Pop() any {
	old := *hh
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	*hh = old[:n-1]
	return h
}
