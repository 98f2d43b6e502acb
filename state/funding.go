package state

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Funder publishes a payment to an address and returns the id of the
// transaction that pays it.
type Funder interface {
	SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error)
}

// Store is a string key-value store.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Put(key, value string) error
}

// CreateFunding pays amount to the channel address and persists the funding
// transaction id under FundingKey. If a funding transaction id is already
// persisted it is returned, nothing is paid, and amount is not checked. Only
// valid for outgoing channels.
//
// The funding output is not known until the funding transaction is passed to
// DiscoverFunding.
func (c *Channel) CreateFunding(ctx context.Context, amount btcutil.Amount, f Funder, s Store) (TxID, error) {
	if c.direction != DirectionOutgoing {
		return TxID{}, fmt.Errorf("creating funding: %w", ErrWrongDirection)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.FundingKey()
	stored, ok, err := s.Get(key)
	if err != nil {
		return TxID{}, fmt.Errorf("loading funding txid: %w", err)
	}
	if ok {
		txid, err := ParseTxID(stored)
		if err != nil {
			return TxID{}, fmt.Errorf("loading funding txid: %w", err)
		}
		return txid, nil
	}
	if amount <= 0 {
		return TxID{}, fmt.Errorf("creating funding: %w", ErrInvalidAmount)
	}

	hash, err := f.SendToAddress(ctx, c.address, amount)
	if err != nil {
		return TxID{}, fmt.Errorf("funding channel address %s: %w", c.address, err)
	}
	txid := TxID(hash)
	if err := s.Put(key, txid.String()); err != nil {
		return TxID{}, fmt.Errorf("storing funding txid: %w", err)
	}
	return txid, nil
}

// DiscoverFunding scans the outputs of tx for the one paying to the channel's
// P2SH output script, and records it as the channel's funding with the
// output's value as the funded maximum. The index of the output is returned.
//
// Once discovered the funding never changes. Discovering the same output
// again returns its index, and discovering a different output is an error.
func (c *Channel) DiscoverFunding(tx *wire.MsgTx) (uint32, error) {
	txid := TxID(tx.TxHash())
	index := -1
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, c.pkScript) {
			index = i
			break
		}
	}
	if index < 0 {
		return 0, fmt.Errorf("discovering funding in tx %s for address %s: %w", txid, c.address, ErrFundingOutputNotFound)
	}
	funding := Funding{
		TxID:        txid,
		OutputIndex: uint32(index),
		Maximum:     tx.TxOut[index].Value,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.funding != nil {
		if *c.funding != funding {
			return 0, fmt.Errorf("discovering funding %s:%d: %w", txid, index, ErrFundingMismatch)
		}
		return c.funding.OutputIndex, nil
	}
	c.funding = &funding
	return funding.OutputIndex, nil
}
