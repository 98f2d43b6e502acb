package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/utxopaychan/paychan/state"
)

// OnDisconnected stops any in progress connect and, if the agent was active,
// closes the incoming channel by submitting the cooperative close for the
// latest claim received. The outgoing channel is left for the remote
// participant to close, or to be reclaimed with Expire after the timeout.
//
// If submitting the close fails the agent remains closing and OnDisconnected
// can be called again to retry.
func (a *Agent) OnDisconnected(ctx context.Context) error {
	a.mu.Lock()
	if a.cancelConnect != nil {
		a.cancelConnect()
		a.cancelConnect = nil
	}
	status := a.status
	switch status {
	case StatusClosed:
		a.mu.Unlock()
		return nil
	case StatusCreated, StatusConnecting:
		a.status = StatusClosed
		a.mu.Unlock()
		a.log.Infof("Disconnected before active")
		a.event(ClosedEvent{})
		return nil
	}
	a.status = StatusClosing
	a.mu.Unlock()

	if status == StatusActive {
		a.event(ClosingEvent{})
	}

	tx, err := a.incoming.BuildCooperativeClose()
	if errors.Is(err, state.ErrNoClaim) {
		a.log.Infof("Disconnected with no claim to close incoming channel with")
		a.setStatus(StatusClosed)
		a.event(ClosedEvent{})
		return nil
	}
	if err != nil {
		err = fmt.Errorf("building cooperative close: %w", err)
		a.errorEvent(err)
		return err
	}
	a.log.Debugf("Cooperative close tx: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	txid, err := a.submitter.SubmitTx(ctx, tx)
	if err != nil {
		err = fmt.Errorf("submitting cooperative close: %w", err)
		a.errorEvent(err)
		return err
	}
	a.log.Infof("Closed incoming channel with balance %d in tx %s", a.incoming.Balance(), txid)
	a.setStatus(StatusClosed)
	a.event(ClosedEvent{TxID: txid})
	return nil
}

// Expire submits the outgoing channel's expiry transaction, returning the
// funds of the outgoing channel to the local participant. The ledger rejects
// the transaction until the channel's timeout is reached.
func (a *Agent) Expire(ctx context.Context) (chainhash.Hash, error) {
	tx, err := a.outgoing.BuildExpiry()
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("building expiry: %w", err)
	}
	a.log.Debugf("Expiry tx: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))
	txid, err := a.submitter.SubmitTx(ctx, tx)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("submitting expiry: %w", err)
	}
	a.log.Infof("Expired outgoing channel in tx %s", txid)
	a.event(ExpiredEvent{TxID: txid})
	return txid, nil
}
