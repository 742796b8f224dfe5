package store

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// blocks at or above this serialized size are snappy compressed
	compressionThreshold = 1024 * 64
	blockCacheSize       = 64

	codecRaw    byte = 0
	codecSnappy byte = 1
)

// ErrBlockNotFound is returned when no block is stored under a hash.
var ErrBlockNotFound = errors.New("block not found")

// BlockStore keeps full blocks keyed by hash. It is the local stand-in for
// the network: the downloader serves block requests out of it.
type BlockStore struct {
	db    dbm.DB
	cache *lru.Cache[chainhash.Hash, []byte]
}

// NewBlockStore returns a BlockStore over db.
func NewBlockStore(db dbm.DB) (*BlockStore, error) {
	cache, err := lru.New[chainhash.Hash, []byte](blockCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}
	return &BlockStore{db: db, cache: cache}, nil
}

// SaveBlock stores the wire serialization of block.
func (bs *BlockStore) SaveBlock(block *btcutil.Block) error {
	raw, err := block.Bytes()
	if err != nil {
		return fmt.Errorf("serializing block %v: %w", block.Hash(), err)
	}

	var value []byte
	if len(raw) >= compressionThreshold {
		value = append([]byte{codecSnappy}, snappy.Encode(nil, raw)...)
	} else {
		value = append([]byte{codecRaw}, raw...)
	}

	if err := bs.db.Set(blockKey(*block.Hash()), value); err != nil {
		return err
	}
	bs.cache.Add(*block.Hash(), raw)
	return nil
}

// LoadBlock returns the block stored under hash together with its
// serialized length.
func (bs *BlockStore) LoadBlock(hash chainhash.Hash) (*btcutil.Block, int, error) {
	raw, ok := bs.cache.Get(hash)
	if !ok {
		value, err := bs.db.Get(blockKey(hash))
		if err != nil {
			return nil, 0, err
		}
		if len(value) == 0 {
			return nil, 0, fmt.Errorf("%w: %v", ErrBlockNotFound, hash)
		}

		switch value[0] {
		case codecRaw:
			raw = value[1:]
		case codecSnappy:
			if raw, err = snappy.Decode(nil, value[1:]); err != nil {
				return nil, 0, fmt.Errorf("decompressing block %v: %w", hash, err)
			}
		default:
			return nil, 0, fmt.Errorf("block %v stored with unknown codec %d", hash, value[0])
		}
		bs.cache.Add(hash, raw)
	}

	block, err := btcutil.NewBlockFromBytes(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("deserializing block %v: %w", hash, err)
	}
	return block, len(raw), nil
}

// HasBlock reports whether a block is stored under hash.
func (bs *BlockStore) HasBlock(hash chainhash.Hash) (bool, error) {
	if bs.cache.Contains(hash) {
		return true, nil
	}
	return bs.db.Has(blockKey(hash))
}
