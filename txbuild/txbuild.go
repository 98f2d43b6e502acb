// Package txbuild builds the deterministic, unsigned transactions that spend a
// payment channel's funding output, and computes and checks the signatures
// over them.
//
// Both participants build the same transactions independently, so every
// builder in this package must produce byte-identical output for identical
// inputs.
package txbuild

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/utxopaychan/paychan/keypair"
)

const (
	// TxVersion is the version of every transaction built.
	TxVersion = 1

	// DefaultFee is the fixed fee, in base units, paid by closure and expiry
	// transactions when no fee is configured.
	DefaultFee = 100_000

	// NonFinalSequence is the input sequence of expiry transactions. It is
	// below the final sequence so that the lock time is enforced.
	NonFinalSequence = wire.MaxTxInSequenceNum - 1

	// SigHashType is the sighash type of all channel signatures.
	SigHashType = txscript.SigHashAll
)

var ErrNegativeChange = errors.New("outputs exceed funded amount")

type ClosureParams struct {
	FundingOutPoint wire.OutPoint
	FundedMaximum   int64
	Receiver        btcutil.Address
	Sender          btcutil.Address
	Amount          int64
	Fee             int64
}

// Closure builds the cooperative closure transaction. It spends the funding
// output and pays Amount to the receiver, followed by the remainder less the
// fee back to the sender. The output order is fixed.
func Closure(p ClosureParams) (*wire.MsgTx, error) {
	if p.Amount < 0 || p.Fee < 0 {
		return nil, fmt.Errorf("invalid amount or fee: cannot be negative")
	}
	change := p.FundedMaximum - p.Amount - p.Fee
	if change < 0 {
		return nil, fmt.Errorf("amount %d and fee %d with funded maximum %d: %w", p.Amount, p.Fee, p.FundedMaximum, ErrNegativeChange)
	}
	receiverScript, err := txscript.PayToAddrScript(p.Receiver)
	if err != nil {
		return nil, fmt.Errorf("building receiver output script: %w", err)
	}
	senderScript, err := txscript.PayToAddrScript(p.Sender)
	if err != nil {
		return nil, fmt.Errorf("building sender output script: %w", err)
	}

	tx := wire.NewMsgTx(TxVersion)
	outPoint := p.FundingOutPoint
	tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(p.Amount, receiverScript))
	tx.AddTxOut(wire.NewTxOut(change, senderScript))
	return tx, nil
}

type ExpiryParams struct {
	FundingOutPoint wire.OutPoint
	FundedMaximum   int64
	Sender          btcutil.Address
	Timeout         uint32
	Fee             int64
}

// Expiry builds the transaction returning the whole funding output, less the
// fee, to the sender. Its lock time is the channel timeout so it can only be
// mined once the timeout has passed.
func Expiry(p ExpiryParams) (*wire.MsgTx, error) {
	if p.Fee < 0 {
		return nil, fmt.Errorf("invalid fee: cannot be negative")
	}
	value := p.FundedMaximum - p.Fee
	if value < 0 {
		return nil, fmt.Errorf("fee %d with funded maximum %d: %w", p.Fee, p.FundedMaximum, ErrNegativeChange)
	}
	senderScript, err := txscript.PayToAddrScript(p.Sender)
	if err != nil {
		return nil, fmt.Errorf("building sender output script: %w", err)
	}

	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = p.Timeout
	outPoint := p.FundingOutPoint
	in := wire.NewTxIn(&outPoint, nil, nil)
	in.Sequence = NonFinalSequence
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(value, senderScript))
	return tx, nil
}

// SignatureHash returns the legacy signature hash of the transaction's first
// input, committing to the redeem script, with SIGHASH_ALL.
func SignatureHash(tx *wire.MsgTx, redeemScript []byte) ([]byte, error) {
	hash, err := txscript.CalcSignatureHash(redeemScript, SigHashType, tx, 0)
	if err != nil {
		return nil, fmt.Errorf("calculating signature hash: %w", err)
	}
	return hash, nil
}

// Sign signs the transaction's signature hash with the key and returns the
// DER signature with the sighash type byte appended, ready to be pushed in a
// signature script.
func Sign(tx *wire.MsgTx, redeemScript []byte, kp *keypair.Full) ([]byte, error) {
	hash, err := SignatureHash(tx, redeemScript)
	if err != nil {
		return nil, err
	}
	return append(kp.Sign(hash), byte(SigHashType)), nil
}

// Verify checks a signature produced by Sign against the transaction and the
// signer's public key.
func Verify(tx *wire.MsgTx, redeemScript []byte, sig []byte, kp *keypair.FromAddress) error {
	if len(sig) == 0 {
		return fmt.Errorf("empty signature: %w", keypair.ErrInvalidSignature)
	}
	if ht := txscript.SigHashType(sig[len(sig)-1]); ht != SigHashType {
		return fmt.Errorf("unexpected sighash type %v: %w", ht, keypair.ErrInvalidSignature)
	}
	hash, err := SignatureHash(tx, redeemScript)
	if err != nil {
		return err
	}
	return kp.Verify(hash, sig[:len(sig)-1])
}

// Serialize returns the hex encoding of the transaction.
func Serialize(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serializing tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// Deserialize parses a hex encoded transaction.
func Deserialize(txHex string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("decoding tx hex: %w", err)
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("deserializing tx: %w", err)
	}
	return tx, nil
}
