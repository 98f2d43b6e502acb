// Package submit submits signed channel transactions to the ledger.
package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog/v2"
	"github.com/utxopaychan/paychan/txbuild"
)

// RawTxSender is an implementation of broadcasting a raw transaction to the
// network.
type RawTxSender interface {
	SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)
}

// Submitter submits transactions to the network via a ledger node. Every
// submitted transaction is logged in full so that it can be rebroadcast by
// hand if submission fails. Submission is not retried.
type Submitter struct {
	RawTxSender RawTxSender
	Log         btclog.Logger
}

// SubmitTx submits the transaction and returns its id. The id returned by the
// ledger node must match the transaction's own id.
func (s *Submitter) SubmitTx(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	log := s.Log
	if log == nil {
		log = btclog.Disabled
	}

	txid := tx.TxHash()
	txHex, err := txbuild.Serialize(tx)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("encoding tx %s: %w", txid, err)
	}
	log.Infof("Submitting tx %s: %s", txid, txHex)

	got, err := s.RawTxSender.SendRawTransaction(ctx, tx)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("submitting tx %s: %w", txid, buildErr(err))
	}
	if got != txid {
		return chainhash.Hash{}, fmt.Errorf("submitting tx %s: ledger returned txid %s", txid, got)
	}
	log.Infof("Submitted tx %s", txid)
	return txid, nil
}

func buildErr(err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w (code %d)", err, rpcErr.Code)
	}
	return err
}
