package agent

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxopaychan/paychan/state"
)

// Event is an event that the agent sends on its Events channel.
type Event interface{}

// ErrorEvent occurs when an error has occurred, and contains the error
// occurred.
type ErrorEvent struct {
	Err error
}

// ConnectedEvent occurs when the funding of both channels has been discovered
// and the agent is active.
type ConnectedEvent struct{}

// PaymentReceivedEvent occurs when a claim is received and accepted. Amount
// is the increase in the balance owed to the local participant.
type PaymentReceivedEvent struct {
	Amount int64
	Claim  state.Claim
}

// PaymentSentEvent occurs when a claim is sent and the other participant has
// acknowledged it.
type PaymentSentEvent struct {
	Amount int64
	Claim  state.Claim
}

// ClosingEvent occurs when the transport disconnects and the agent begins
// closing the incoming channel.
type ClosingEvent struct{}

// ClosedEvent occurs when the agent is closed. TxID is the id of the
// submitted cooperative close transaction, and is zero if there was no claim
// to close with.
type ClosedEvent struct {
	TxID chainhash.Hash
}

// ExpiredEvent occurs when the outgoing channel's expiry transaction has been
// submitted.
type ExpiredEvent struct {
	TxID chainhash.Hash
}
