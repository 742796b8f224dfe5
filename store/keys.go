package store

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/orderedcode"
)

const (
	// prefixes are int64 so that orderedcode keeps each family contiguous
	// and headers sorted by height.
	prefixHeader    = int64(1)
	prefixHashIndex = int64(2)
	prefixBlock     = int64(3)
)

var headerStoreStateKey = []byte("headerStoreState")

func headerKey(height int64) []byte {
	key, err := orderedcode.Append(nil, prefixHeader, height)
	if err != nil {
		panic(err)
	}
	return key
}

func hashIndexKey(hash chainhash.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixHashIndex, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func blockKey(hash chainhash.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixBlock, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func encodeHeight(height int64) []byte {
	bz, err := orderedcode.Append(nil, height)
	if err != nil {
		panic(err)
	}
	return bz
}

func decodeHeight(bz []byte) (int64, error) {
	var height int64
	remaining, err := orderedcode.Parse(string(bz), &height)
	if err != nil {
		return 0, fmt.Errorf("decoding height: %w", err)
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("decoding height: %d trailing bytes", len(remaining))
	}
	return height, nil
}
