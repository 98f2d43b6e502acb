package state

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/utxopaychan/paychan/script"
	"github.com/utxopaychan/paychan/txbuild"
)

// BuildCooperativeClose returns the closure transaction for the latest claim,
// signed by both participants, paying the claim amount to the receiver and
// the rest less the fee to the sender. The sender's signature is the one
// carried by the claim. Only valid for incoming channels.
func (c *Channel) BuildCooperativeClose() (*wire.MsgTx, error) {
	if c.direction != DirectionIncoming {
		return nil, fmt.Errorf("building cooperative close: %w", ErrWrongDirection)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.funding == nil {
		return nil, fmt.Errorf("building cooperative close: %w", ErrNoFunding)
	}
	if c.latestClaim == nil {
		return nil, fmt.Errorf("building cooperative close: %w", ErrNoClaim)
	}

	tx, err := c.closureTx(*c.funding, c.latestClaim.Amount)
	if err != nil {
		return nil, fmt.Errorf("building closure tx: %w", err)
	}
	receiverSig, err := txbuild.Sign(tx, c.redeemScript, c.local)
	if err != nil {
		return nil, fmt.Errorf("signing closure tx: %w", err)
	}
	tx.TxIn[0].SignatureScript, err = script.CooperativeSpend(c.latestClaim.Signature, receiverSig, c.redeemScript)
	if err != nil {
		return nil, fmt.Errorf("building closure signature script: %w", err)
	}
	return tx, nil
}

// BuildExpiry returns the expiry transaction, signed by the sender, paying
// the funded maximum less the fee back to the sender. The transaction is only
// valid on the ledger once the timeout has been reached. Only valid for
// outgoing channels.
func (c *Channel) BuildExpiry() (*wire.MsgTx, error) {
	if c.direction != DirectionOutgoing {
		return nil, fmt.Errorf("building expiry: %w", ErrWrongDirection)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.funding == nil {
		return nil, fmt.Errorf("building expiry: %w", ErrNoFunding)
	}

	tx, err := txbuild.Expiry(txbuild.ExpiryParams{
		FundingOutPoint: c.funding.OutPoint(),
		FundedMaximum:   c.funding.Maximum,
		Sender:          c.sender.Address(),
		Timeout:         c.timeout,
		Fee:             c.fee,
	})
	if err != nil {
		return nil, fmt.Errorf("building expiry tx: %w", err)
	}
	sig, err := txbuild.Sign(tx, c.redeemScript, c.local)
	if err != nil {
		return nil, fmt.Errorf("signing expiry tx: %w", err)
	}
	tx.TxIn[0].SignatureScript, err = script.ExpirySpend(sig, c.redeemScript)
	if err != nil {
		return nil, fmt.Errorf("building expiry signature script: %w", err)
	}
	return tx, nil
}
