package state

import (
	"fmt"
)

// Snapshot is a snapshot of a Channel's mutable state that can be persisted
// and later restored into a Channel with the same configuration.
type Snapshot struct {
	Direction   Direction
	Funding     *Funding `json:",omitempty"`
	Balance     int64
	LatestClaim *Claim `json:",omitempty"`
}

func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Direction: c.direction,
		Balance:   c.balance,
	}
	if c.funding != nil {
		f := *c.funding
		s.Funding = &f
	}
	if c.latestClaim != nil {
		cl := copyClaim(*c.latestClaim)
		s.LatestClaim = &cl
	}
	return s
}

// Restore replaces the channel's state with the snapshot. The snapshot's
// funding must match any funding already discovered, and on an incoming
// channel the snapshot's claim must carry a valid sender signature. If the
// snapshot is rejected the channel is unchanged.
func (c *Channel) Restore(s Snapshot) error {
	if s.Direction != c.direction {
		return fmt.Errorf("restoring %s snapshot into %s channel: %w", s.Direction, c.direction, ErrWrongDirection)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.Funding == nil {
		if s.Balance != 0 || s.LatestClaim != nil {
			return fmt.Errorf("restoring snapshot with balance and no funding: %w", ErrNoFunding)
		}
		return nil
	}
	funding := *s.Funding
	if c.funding != nil && *c.funding != funding {
		return fmt.Errorf("restoring snapshot funding %s:%d: %w", funding.TxID, funding.OutputIndex, ErrFundingMismatch)
	}
	if s.Balance < 0 || s.Balance > funding.Maximum-c.fee {
		return fmt.Errorf("restoring snapshot balance %d: %w", s.Balance, ErrOverFunded)
	}
	var claim *Claim
	if s.LatestClaim != nil {
		cl := copyClaim(*s.LatestClaim)
		if cl.Amount != s.Balance {
			return fmt.Errorf("restoring snapshot claim of %d with balance %d", cl.Amount, s.Balance)
		}
		if err := c.verifyClaimSignature(funding, cl); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
		claim = &cl
	} else if s.Balance != 0 {
		return fmt.Errorf("restoring snapshot balance %d: %w", s.Balance, ErrNoClaim)
	}

	c.funding = &funding
	c.balance = s.Balance
	c.latestClaim = claim
	return nil
}
