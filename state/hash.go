package state

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxID is a transaction id. It is displayed and marshaled in the byte
// reversed hex form used by ledger nodes.
type TxID chainhash.Hash

func (h TxID) Hash() chainhash.Hash {
	return chainhash.Hash(h)
}

func (h TxID) String() string {
	return chainhash.Hash(h).String()
}

func (h TxID) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *TxID) UnmarshalText(text []byte) error {
	if len(text) != chainhash.MaxHashStringSize {
		return fmt.Errorf("unmarshaling transaction id: input length %d expected %d", len(text), chainhash.MaxHashStringSize)
	}
	var hash chainhash.Hash
	if err := chainhash.Decode(&hash, string(text)); err != nil {
		return fmt.Errorf("unmarshaling transaction id: %w", err)
	}
	*h = TxID(hash)
	return nil
}

// ParseTxID parses a transaction id in the byte reversed hex form.
func ParseTxID(s string) (TxID, error) {
	var h TxID
	err := h.UnmarshalText([]byte(s))
	return h, err
}
