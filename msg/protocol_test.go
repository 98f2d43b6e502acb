package msg

import (
	"bytes"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utxopaychan/paychan/state"
)

func TestEncodeClaim(t *testing.T) {
	pd, err := EncodeClaim(state.Claim{Amount: 15_000, Signature: []byte{0x30, 0x44, 0x01}})
	require.NoError(t, err)
	assert.Equal(t, ProtocolClaim, pd.ProtocolName)
	assert.Equal(t, ContentTypeJSON, pd.ContentType)
	assert.JSONEq(t, `{"amount":"15000","signature":"304401"}`, string(pd.Data))
}

func TestDecodeClaim(t *testing.T) {
	claim, err := DecodeClaim(ProtocolData{
		ProtocolName: ProtocolClaim,
		ContentType:  ContentTypeJSON,
		Data:         []byte(`{"amount":"10000","signature":"3044ff01"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, state.Claim{Amount: 10_000, Signature: []byte{0x30, 0x44, 0xff, 0x01}}, claim)
}

func TestDecodeClaim_invalid(t *testing.T) {
	testCases := []struct {
		name    string
		pd      ProtocolData
		wantErr string
	}{
		{"wrong protocol", ProtocolData{ProtocolName: "ilp"}, `decoding claim from "ilp": unexpected protocol`},
		{"not json", ProtocolData{ProtocolName: ProtocolClaim, Data: []byte(`{`)}, "decoding claim: unexpected end of JSON input"},
		{"amount not decimal", ProtocolData{ProtocolName: ProtocolClaim, Data: []byte(`{"amount":"1.5","signature":"00"}`)}, `decoding claim amount: strconv.ParseInt: parsing "1.5": invalid syntax`},
		{"amount zero", ProtocolData{ProtocolName: ProtocolClaim, Data: []byte(`{"amount":"0","signature":"00"}`)}, "decoding claim amount 0: amount must be greater than zero"},
		{"amount negative", ProtocolData{ProtocolName: ProtocolClaim, Data: []byte(`{"amount":"-7","signature":"00"}`)}, "decoding claim amount -7: amount must be greater than zero"},
		{"signature not hex", ProtocolData{ProtocolName: ProtocolClaim, Data: []byte(`{"amount":"7","signature":"xyz"}`)}, "decoding claim signature: encoding/hex: invalid byte: U+0078 'x'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClaim(tc.pd)
			assert.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestDecodeClaim_fuzz(t *testing.T) {
	f := fuzz.New().NilChance(0.1)
	for i := 0; i < 1000; i++ {
		pd := ProtocolData{}
		f.Fuzz(&pd.Data)
		pd.ProtocolName = ProtocolClaim
		// Must not panic, and anything decoded must be a positive amount.
		claim, err := DecodeClaim(pd)
		if err == nil {
			assert.Greater(t, claim.Amount, int64(0))
		}
	}

	for i := 0; i < 1000; i++ {
		claim := state.Claim{}
		f.Fuzz(&claim.Signature)
		f.Fuzz(&claim.Amount)
		if claim.Amount <= 0 {
			continue
		}
		pd, err := EncodeClaim(claim)
		require.NoError(t, err)
		got, err := DecodeClaim(pd)
		require.NoError(t, err)
		assert.Equal(t, claim.Amount, got.Amount)
		assert.True(t, bytes.Equal(claim.Signature, got.Signature))
	}
}

func TestFundingID(t *testing.T) {
	req := FundingIDRequest()
	assert.Equal(t, ProtocolGetFundingID, req.ProtocolName)
	assert.Empty(t, req.Data)

	txid := state.TxID{0xab, 0xcd}
	pd, err := EncodeFundingID(txid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"txid":"000000000000000000000000000000000000000000000000000000000000cdab"}`, string(pd.Data))

	got, err := DecodeFundingID(pd)
	require.NoError(t, err)
	assert.Equal(t, txid, got)

	_, err = DecodeFundingID(ProtocolData{ProtocolName: ProtocolGetFundingID, Data: []byte(`{"txid":"abc"}`)})
	assert.EqualError(t, err, "decoding funding id: unmarshaling transaction id: input length 3 expected 64")

	_, err = DecodeFundingID(ProtocolData{ProtocolName: ProtocolClaim})
	assert.ErrorIs(t, err, ErrUnexpectedProtocol)
}
