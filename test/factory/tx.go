package factory

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/stratis-go/fullnode/internal/synth"
)

// MakeTxs is a helper function to generate mock transactions by given the
// block height and the transaction numbers.
func MakeTxs(height int64, num int, tag byte) []*wire.MsgTx {
	return synth.Txs(height, num, tag)
}
