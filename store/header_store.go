package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	dbm "github.com/cometbft/cometbft-db"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stratis-go/fullnode/chain"
	cmtsync "github.com/stratis-go/fullnode/libs/sync"
)

const hashCacheSize = 4096

var (
	// ErrHeaderNotFound is returned when no header is stored at a height or
	// under a hash.
	ErrHeaderNotFound = errors.New("header not found")
	// ErrEmptyStore is returned by LoadChain when no genesis was saved.
	ErrEmptyStore = errors.New("header store is empty")
)

/*
HeaderStore persists a single linear header chain, genesis at height 0.

Two families of keys are written:
  - header:    height -> 80 byte wire encoded header
  - hashIndex: hash   -> height

The store can be assumed to contain all contiguous headers between 0 and
Height() (inclusive). Rewind removes the tail so a reorganised branch can be
saved on top of the fork point.
*/
type HeaderStore struct {
	db dbm.DB

	// mtx guards height. Header contents are immutable once written.
	mtx    cmtsync.RWMutex
	height int64

	heightCache *lru.Cache[chainhash.Hash, int64]
}

// NewHeaderStore returns a HeaderStore over db, initialized to the last
// height that was saved to it.
func NewHeaderStore(db dbm.DB) (*HeaderStore, error) {
	cache, err := lru.New[chainhash.Hash, int64](hashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}

	height := int64(-1)
	bz, err := db.Get(headerStoreStateKey)
	if err != nil {
		return nil, err
	}
	if len(bz) > 0 {
		if height, err = decodeHeight(bz); err != nil {
			return nil, fmt.Errorf("corrupt header store state: %w", err)
		}
	}

	return &HeaderStore{
		db:          db,
		height:      height,
		heightCache: cache,
	}, nil
}

// Height returns the height of the last saved header, or -1 if empty.
func (hs *HeaderStore) Height() int64 {
	hs.mtx.RLock()
	defer hs.mtx.RUnlock()
	return hs.height
}

// SaveHeader appends bh. Unless the store is empty, bh must reference the
// stored tip as its predecessor.
func (hs *HeaderStore) SaveHeader(bh wire.BlockHeader) (*chain.Header, error) {
	hs.mtx.Lock()
	defer hs.mtx.Unlock()

	if hs.height >= 0 {
		tip, err := hs.loadHeader(hs.height)
		if err != nil {
			return nil, err
		}
		if bh.PrevBlock != tip.Hash() {
			return nil, fmt.Errorf("%w: prev %v, tip %v", chain.ErrNotLinked, bh.PrevBlock, tip)
		}
	}

	header := chain.NewHeader(bh, hs.height+1)

	var buf bytes.Buffer
	if err := bh.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serializing header: %w", err)
	}

	batch := hs.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(headerKey(header.Height), buf.Bytes()); err != nil {
		return nil, err
	}
	if err := batch.Set(hashIndexKey(header.Hash()), encodeHeight(header.Height)); err != nil {
		return nil, err
	}
	if err := batch.Set(headerStoreStateKey, encodeHeight(header.Height)); err != nil {
		return nil, err
	}
	if err := batch.WriteSync(); err != nil {
		return nil, err
	}

	hs.height = header.Height
	hs.heightCache.Add(header.Hash(), header.Height)
	return header, nil
}

// LoadHeader returns the header at height.
func (hs *HeaderStore) LoadHeader(height int64) (*chain.Header, error) {
	hs.mtx.RLock()
	defer hs.mtx.RUnlock()

	if height < 0 || height > hs.height {
		return nil, fmt.Errorf("%w: height %d", ErrHeaderNotFound, height)
	}
	return hs.loadHeader(height)
}

// CONTRACT: hs.mtx must be held.
func (hs *HeaderStore) loadHeader(height int64) (*chain.Header, error) {
	bz, err := hs.db.Get(headerKey(height))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, fmt.Errorf("%w: height %d", ErrHeaderNotFound, height)
	}
	bh, err := decodeHeader(bz)
	if err != nil {
		return nil, fmt.Errorf("header at height %d: %w", height, err)
	}
	return chain.NewHeader(bh, height), nil
}

// HeightByHash returns the height the header with hash was saved at.
func (hs *HeaderStore) HeightByHash(hash chainhash.Hash) (int64, error) {
	if height, ok := hs.heightCache.Get(hash); ok {
		return height, nil
	}

	bz, err := hs.db.Get(hashIndexKey(hash))
	if err != nil {
		return 0, err
	}
	if len(bz) == 0 {
		return 0, fmt.Errorf("%w: hash %v", ErrHeaderNotFound, hash)
	}
	height, err := decodeHeight(bz)
	if err != nil {
		return 0, err
	}
	hs.heightCache.Add(hash, height)
	return height, nil
}

// Rewind deletes every header above height.
func (hs *HeaderStore) Rewind(height int64) error {
	hs.mtx.Lock()
	defer hs.mtx.Unlock()

	if height >= hs.height {
		return nil
	}
	if height < 0 {
		height = -1
	}

	batch := hs.db.NewBatch()
	defer batch.Close()

	for h := hs.height; h > height; h-- {
		header, err := hs.loadHeader(h)
		if err != nil {
			return err
		}
		if err := batch.Delete(headerKey(h)); err != nil {
			return err
		}
		if err := batch.Delete(hashIndexKey(header.Hash())); err != nil {
			return err
		}
		hs.heightCache.Remove(header.Hash())
	}
	if height < 0 {
		if err := batch.Delete(headerStoreStateKey); err != nil {
			return err
		}
	} else if err := batch.Set(headerStoreStateKey, encodeHeight(height)); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return err
	}

	hs.height = height
	return nil
}

// LoadChain reads every stored header into a fresh in-memory chain.
func (hs *HeaderStore) LoadChain() (*chain.Chain, error) {
	hs.mtx.RLock()
	defer hs.mtx.RUnlock()

	if hs.height < 0 {
		return nil, ErrEmptyStore
	}

	itr, err := hs.db.Iterator(headerKey(0), headerKey(hs.height+1))
	if err != nil {
		return nil, err
	}
	defer itr.Close()

	var c *chain.Chain
	for ; itr.Valid(); itr.Next() {
		bh, err := decodeHeader(itr.Value())
		if err != nil {
			return nil, err
		}
		if c == nil {
			c = chain.NewChain(bh)
			continue
		}
		if _, err := c.Append(bh); err != nil {
			return nil, err
		}
	}
	if err := itr.Error(); err != nil {
		return nil, err
	}
	if c == nil || c.Height() != hs.height {
		return nil, fmt.Errorf("header store is missing headers below height %d", hs.height)
	}
	return c, nil
}

// ReloadChain implements blockpull.ChainLoader.
func (hs *HeaderStore) ReloadChain() (chain.View, error) {
	c, err := hs.LoadChain()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func decodeHeader(bz []byte) (wire.BlockHeader, error) {
	var bh wire.BlockHeader
	if err := bh.Deserialize(bytes.NewReader(bz)); err != nil {
		return bh, fmt.Errorf("deserializing header: %w", err)
	}
	return bh, nil
}
