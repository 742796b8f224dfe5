// Package synth builds deterministic synthetic block chains, for local
// runs without a network and for tests.
package synth

import (
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	genesisTime   = 1231006505
	blockInterval = 10 * time.Minute
	regtestBits   = 0x207fffff
)

// Txs returns num transactions for a block at height. The first one is a
// coinbase; tag lets two branches at the same height produce distinct
// transactions.
func Txs(height int64, num int, tag byte) []*wire.MsgTx {
	txs := make([]*wire.MsgTx, 0, num)
	for i := 0; i < num; i++ {
		script := make([]byte, 10)
		binary.LittleEndian.PutUint64(script, uint64(height))
		script[8] = byte(i)
		script[9] = tag

		tx := wire.NewMsgTx(wire.TxVersion)
		prevOut := wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex)
		if i > 0 {
			prevOut = wire.NewOutPoint(&chainhash.Hash{byte(height), byte(i)}, uint32(i))
		}
		tx.AddTxIn(wire.NewTxIn(prevOut, script, nil))
		tx.AddTxOut(wire.NewTxOut(int64(50*btcutil.SatoshiPerBitcoin), []byte{0x51}))
		txs = append(txs, tx)
	}
	return txs
}

// Block builds the block at height on top of prev, carrying numTxs
// transactions.
func Block(prev chainhash.Hash, height int64, numTxs int, tag byte) *btcutil.Block {
	if numTxs < 1 {
		numTxs = 1
	}

	txs := Txs(height, numTxs, tag)
	utxs := make([]*btcutil.Tx, len(txs))
	for i, tx := range txs {
		utxs[i] = btcutil.NewTx(tx)
	}
	merkle := blockchain.CalcMerkleRoot(utxs, false)

	header := wire.NewBlockHeader(1, &prev, &merkle, regtestBits, uint32(height))
	header.Timestamp = time.Unix(genesisTime, 0).Add(time.Duration(height) * blockInterval)

	msg := wire.NewMsgBlock(header)
	for _, tx := range txs {
		_ = msg.AddTransaction(tx)
	}
	block := btcutil.NewBlock(msg)
	block.SetHeight(int32(height))
	return block
}

// Genesis returns the genesis block of every synthetic chain.
func Genesis() *btcutil.Block {
	return Block(chainhash.Hash{}, 0, 1, 0)
}

// Corrupt returns a block with the header of b and one extra
// transaction, so that its hash still matches b while its merkle root no
// longer commits to its transactions.
func Corrupt(b *btcutil.Block) *btcutil.Block {
	src := b.MsgBlock()
	msg := wire.NewMsgBlock(&src.Header)
	for _, tx := range src.Transactions {
		_ = msg.AddTransaction(tx)
	}
	height := int64(b.Height())
	_ = msg.AddTransaction(Txs(height, 1, 0xff)[0])

	block := btcutil.NewBlock(msg)
	block.SetHeight(b.Height())
	return block
}
