package msg

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/utxopaychan/paychan/state"
)

const (
	// ProtocolGetFundingID is the protocol of a request for the peer's
	// outgoing funding transaction id. The request has an empty payload.
	ProtocolGetFundingID = "_get_outgoing_txid"

	// ProtocolClaim is the protocol of a claim carried by a transfer.
	ProtocolClaim = "claim"
)

var ErrUnexpectedProtocol = errors.New("unexpected protocol")

type claimPayload struct {
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type fundingIDPayload struct {
	TxID string `json:"txid"`
}

// EncodeClaim encodes a claim as JSON with the cumulative amount as a decimal
// string and the signature as hex.
func EncodeClaim(c state.Claim) (ProtocolData, error) {
	data, err := json.Marshal(claimPayload{
		Amount:    strconv.FormatInt(c.Amount, 10),
		Signature: hex.EncodeToString(c.Signature),
	})
	if err != nil {
		return ProtocolData{}, fmt.Errorf("encoding claim: %w", err)
	}
	return ProtocolData{
		ProtocolName: ProtocolClaim,
		ContentType:  ContentTypeJSON,
		Data:         data,
	}, nil
}

func DecodeClaim(p ProtocolData) (state.Claim, error) {
	if p.ProtocolName != ProtocolClaim {
		return state.Claim{}, fmt.Errorf("decoding claim from %q: %w", p.ProtocolName, ErrUnexpectedProtocol)
	}
	payload := claimPayload{}
	err := json.Unmarshal(p.Data, &payload)
	if err != nil {
		return state.Claim{}, fmt.Errorf("decoding claim: %w", err)
	}
	amount, err := strconv.ParseInt(payload.Amount, 10, 64)
	if err != nil {
		return state.Claim{}, fmt.Errorf("decoding claim amount: %w", err)
	}
	if amount <= 0 {
		return state.Claim{}, fmt.Errorf("decoding claim amount %d: %w", amount, state.ErrInvalidAmount)
	}
	sig, err := hex.DecodeString(payload.Signature)
	if err != nil {
		return state.Claim{}, fmt.Errorf("decoding claim signature: %w", err)
	}
	return state.Claim{Amount: amount, Signature: sig}, nil
}

// FundingIDRequest returns the protocol data of a request for the peer's
// outgoing funding transaction id.
func FundingIDRequest() ProtocolData {
	return ProtocolData{
		ProtocolName: ProtocolGetFundingID,
		ContentType:  ContentTypeOctetStream,
		Data:         []byte{},
	}
}

func EncodeFundingID(txid state.TxID) (ProtocolData, error) {
	data, err := json.Marshal(fundingIDPayload{TxID: txid.String()})
	if err != nil {
		return ProtocolData{}, fmt.Errorf("encoding funding id: %w", err)
	}
	return ProtocolData{
		ProtocolName: ProtocolGetFundingID,
		ContentType:  ContentTypeJSON,
		Data:         data,
	}, nil
}

func DecodeFundingID(p ProtocolData) (state.TxID, error) {
	if p.ProtocolName != ProtocolGetFundingID {
		return state.TxID{}, fmt.Errorf("decoding funding id from %q: %w", p.ProtocolName, ErrUnexpectedProtocol)
	}
	payload := fundingIDPayload{}
	err := json.Unmarshal(p.Data, &payload)
	if err != nil {
		return state.TxID{}, fmt.Errorf("decoding funding id: %w", err)
	}
	txid, err := state.ParseTxID(payload.TxID)
	if err != nil {
		return state.TxID{}, fmt.Errorf("decoding funding id: %w", err)
	}
	return txid, nil
}
