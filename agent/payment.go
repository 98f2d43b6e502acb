package agent

import (
	"context"
	"fmt"
	"strconv"

	"github.com/utxopaychan/paychan/msg"
)

// SendMoney pays amount to the remote participant by sending them a claim for
// the outgoing channel's new cumulative balance. The claim is persisted
// before it is sent so that a lower claim is never issued after a restart.
// Concurrent calls are sent one at a time in the order their claims are
// created.
func (a *Agent) SendMoney(ctx context.Context, amount int64) error {
	if a.Status() != StatusActive {
		return ErrNotActive
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	claim, err := a.outgoing.CreateClaim(amount)
	if err != nil {
		return fmt.Errorf("creating claim for %d: %w", amount, err)
	}
	if err := a.persist(a.outgoing); err != nil {
		return err
	}
	pd, err := msg.EncodeClaim(claim)
	if err != nil {
		return err
	}

	a.log.Infof("Sending %d, balance %d", amount, claim.Amount)
	_, err = a.call(ctx, msg.Message{
		Type:         msg.TypeTransfer,
		Amount:       strconv.FormatInt(amount, 10),
		ProtocolData: []msg.ProtocolData{pd},
	})
	if err != nil {
		err = fmt.Errorf("sending claim for %d: %w", claim.Amount, err)
		a.errorEvent(err)
		return err
	}
	a.event(PaymentSentEvent{Amount: amount, Claim: claim})
	return nil
}
