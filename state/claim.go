package state

import (
	"fmt"

	"github.com/utxopaychan/paychan/txbuild"
)

// CreateClaim increases the balance owed to the receiver by amount and
// returns the claim for the new cumulative balance, signed by the sender.
// Only valid for outgoing channels.
func (c *Channel) CreateClaim(amount int64) (Claim, error) {
	if c.direction != DirectionOutgoing {
		return Claim{}, fmt.Errorf("creating claim: %w", ErrWrongDirection)
	}
	if amount <= 0 {
		return Claim{}, fmt.Errorf("creating claim: %w", ErrInvalidAmount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.funding == nil {
		return Claim{}, fmt.Errorf("creating claim: %w", ErrNoFunding)
	}
	total := c.balance + amount
	if total > c.spendable() {
		return Claim{}, fmt.Errorf("claim of %d with spendable %d: %w", total, c.spendable(), ErrOverFunded)
	}

	tx, err := c.closureTx(*c.funding, total)
	if err != nil {
		return Claim{}, fmt.Errorf("building closure tx: %w", err)
	}
	sig, err := txbuild.Sign(tx, c.redeemScript, c.local)
	if err != nil {
		return Claim{}, fmt.Errorf("signing closure tx: %w", err)
	}

	claim := Claim{Amount: total, Signature: sig}
	c.balance = total
	c.latestClaim = &claim
	return copyClaim(claim), nil
}

// VerifyClaim checks that the claim's signature is the sender's signature of
// the closure transaction for the claim's amount, and that the amount is
// greater than the current balance. If the claim is valid it replaces the
// latest claim and the balance becomes the claim's amount, and the increase
// in balance is returned. If the claim is invalid the channel is unchanged.
// Only valid for incoming channels.
func (c *Channel) VerifyClaim(claim Claim) (int64, error) {
	if c.direction != DirectionIncoming {
		return 0, fmt.Errorf("verifying claim: %w", ErrWrongDirection)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.funding == nil {
		return 0, fmt.Errorf("verifying claim: %w", ErrNoFunding)
	}
	if claim.Amount <= c.balance {
		return 0, fmt.Errorf("claim of %d with balance %d: %w", claim.Amount, c.balance, ErrNonIncreasingClaim)
	}
	if claim.Amount > c.spendable() {
		return 0, fmt.Errorf("claim of %d with spendable %d: %w", claim.Amount, c.spendable(), ErrOverFunded)
	}
	if err := c.verifyClaimSignature(*c.funding, claim); err != nil {
		return 0, err
	}

	delta := claim.Amount - c.balance
	accepted := copyClaim(claim)
	c.balance = accepted.Amount
	c.latestClaim = &accepted
	return delta, nil
}

func (c *Channel) verifyClaimSignature(f Funding, claim Claim) error {
	tx, err := c.closureTx(f, claim.Amount)
	if err != nil {
		return fmt.Errorf("building closure tx: %w", err)
	}
	err = txbuild.Verify(tx, c.redeemScript, claim.Signature, c.sender)
	if err != nil {
		return fmt.Errorf("claim of %d: %w: %w", claim.Amount, ErrInvalidSignature, err)
	}
	return nil
}
