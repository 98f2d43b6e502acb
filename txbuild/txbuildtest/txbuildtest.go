// Package txbuildtest contains helpers for building funding transactions and
// executing channel spends in tests.
package txbuildtest

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// FundingTx builds a transaction with n outputs where the output at index
// pays value to pkScript and every other output pays to an unrelated
// pay-to-pubkey-hash script.
func FundingTx(pkScript []byte, value int64, index, n int) *wire.MsgTx {
	if index < 0 || index >= n {
		panic(fmt.Errorf("funding output index %d out of range of %d outputs", index, n))
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	prevHash := chainhash.DoubleHashH([]byte("funding input"))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	for i := 0; i < n; i++ {
		if i == index {
			tx.AddTxOut(wire.NewTxOut(value, pkScript))
			continue
		}
		tx.AddTxOut(wire.NewTxOut(value+int64(i), OtherScript(i)))
	}
	return tx
}

// OtherScript returns a pay-to-pubkey-hash script that differs for each seed.
func OtherScript(seed int) []byte {
	pkHash := bytes.Repeat([]byte{byte(seed + 1)}, 20)
	s, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pkHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		panic(err)
	}
	return s
}

// Execute runs the script engine over the first input of tx, which must spend
// an output with prevPkScript and prevValue, using the standard verification
// flags. A nil error means the spend is valid.
func Execute(tx *wire.MsgTx, prevPkScript []byte, prevValue int64) error {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevPkScript, prevValue)
	vm, err := txscript.NewEngine(
		prevPkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), prevValue, fetcher,
	)
	if err != nil {
		return fmt.Errorf("creating script engine: %w", err)
	}
	return vm.Execute()
}

// HighS returns the malleated form of a DER encoded signature, without a
// sighash type byte, with S replaced by its negation N-S. The result is a
// valid ECDSA signature of the same hash that is not canonical.
func HighS(der []byte) []byte {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		panic(fmt.Errorf("parsing signature: %w", err))
	}
	r, s := sig.R(), sig.S()
	s.Negate()
	rb, sb := r.Bytes(), s.Bytes()
	ri, si := derInt(rb[:]), derInt(sb[:])
	out := []byte{0x30, byte(len(ri) + len(si))}
	out = append(out, ri...)
	return append(out, si...)
}

func derInt(b []byte) []byte {
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return append([]byte{0x02, byte(len(b))}, b...)
}
