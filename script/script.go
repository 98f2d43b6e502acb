// Package script compiles the redeem script that locks a unidirectional
// payment channel's funds, and assembles the signature scripts that spend it.
//
// The redeem script has two branches selected by a flag pushed by the
// spender:
//
//	OP_IF
//	    <timeout> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	OP_ELSE
//	    <receiver pubkey> OP_CHECKSIGVERIFY
//	OP_ENDIF
//	<sender pubkey> OP_CHECKSIG
//
// The sender's signature is required on both branches. The receiver's
// signature is additionally required on the cooperative (false) branch, and
// the expiry (true) branch is only valid once the transaction lock time has
// reached the timeout.
package script

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var ErrInvalidTimeout = errors.New("invalid timeout: must be greater than zero")

// Compile builds the redeem script for a channel from the sender's and
// receiver's compressed public keys and the absolute timeout, a block height
// or unix time as interpreted by OP_CHECKLOCKTIMEVERIFY. The script is a pure
// function of its inputs.
func Compile(senderPublicKey, receiverPublicKey []byte, timeout uint32) ([]byte, error) {
	if timeout == 0 {
		return nil, ErrInvalidTimeout
	}
	if len(senderPublicKey) == 0 || len(receiverPublicKey) == 0 {
		return nil, fmt.Errorf("compiling redeem script: public keys required")
	}
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddInt64(int64(timeout))
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_ELSE)
	b.AddData(receiverPublicKey)
	b.AddOp(txscript.OP_CHECKSIGVERIFY)
	b.AddOp(txscript.OP_ENDIF)
	b.AddData(senderPublicKey)
	b.AddOp(txscript.OP_CHECKSIG)
	s, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("compiling redeem script: %w", err)
	}
	return s, nil
}

// PayToScriptHash returns the output script that commits to the hash160 of
// the redeem script.
func PayToScriptHash(redeemScript []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_HASH160)
	b.AddData(btcutil.Hash160(redeemScript))
	b.AddOp(txscript.OP_EQUAL)
	return b.Script()
}

// Address returns the P2SH address of the redeem script on the network.
func Address(redeemScript []byte, params *chaincfg.Params) (*btcutil.AddressScriptHash, error) {
	addr, err := btcutil.NewAddressScriptHash(redeemScript, params)
	if err != nil {
		return nil, fmt.Errorf("deriving p2sh address: %w", err)
	}
	return addr, nil
}

// CooperativeSpend returns the signature script spending the false branch:
// the sender's and receiver's signatures, each with its sighash type byte
// appended, followed by OP_FALSE and the redeem script.
func CooperativeSpend(senderSig, receiverSig, redeemScript []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(senderSig)
	b.AddData(receiverSig)
	b.AddOp(txscript.OP_FALSE)
	b.AddData(redeemScript)
	return b.Script()
}

// ExpirySpend returns the signature script spending the true branch: the
// sender's signature with its sighash type byte appended, followed by
// OP_TRUE and the redeem script.
func ExpirySpend(senderSig, redeemScript []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(senderSig)
	b.AddOp(txscript.OP_TRUE)
	b.AddData(redeemScript)
	return b.Script()
}
