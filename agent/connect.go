package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/utxopaychan/paychan/msg"
	"github.com/utxopaychan/paychan/state"
	"golang.org/x/sync/errgroup"
)

// OnConnected funds the outgoing channel, or loads its funding id if it was
// funded previously, then requests the remote participant's funding id until
// it is received, and discovers the funding of both channels. The agent is
// active once both channels' funding is discovered.
//
// Requests for the remote participant's funding id are retried at the retry
// interval for as long as they fail, until ctx is done or Close is called.
func (a *Agent) OnConnected(ctx context.Context) error {
	a.mu.Lock()
	if a.status != StatusCreated {
		status := a.status
		a.mu.Unlock()
		return fmt.Errorf("connecting agent with status %s", status)
	}
	a.status = StatusConnecting
	ctx, cancel := context.WithCancel(ctx)
	a.cancelConnect = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.cancelConnect = nil
		a.mu.Unlock()
		cancel()
	}()

	a.log.Infof("Connecting to peer %s with prefix %s", a.peer, a.Prefix())

	err := a.connect(ctx)

	a.mu.Lock()
	connecting := a.status == StatusConnecting
	if connecting && err == nil {
		a.status = StatusActive
	} else if connecting {
		a.status = StatusCreated
	}
	a.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("connecting: %w", err)
		a.errorEvent(err)
		return err
	}
	if !connecting {
		return fmt.Errorf("connecting: disconnected before active")
	}
	a.log.Infof("Channels active: incoming %s, outgoing %s", a.incoming.Address(), a.outgoing.Address())
	a.event(ConnectedEvent{})
	return nil
}

func (a *Agent) connect(ctx context.Context) error {
	outgoingTxID, err := a.outgoing.CreateFunding(ctx, a.fundingAmount, a.ledger, a.store)
	if err != nil {
		return fmt.Errorf("creating outgoing funding: %w", err)
	}
	a.log.Infof("Outgoing channel address %s funded by tx %s", a.outgoing.Address(), outgoingTxID)
	a.mu.Lock()
	a.outgoingTxID = &outgoingTxID
	a.mu.Unlock()

	incomingTxID, err := a.requestFundingID(ctx)
	if err != nil {
		return err
	}
	a.log.Infof("Incoming channel address %s funded by tx %s", a.incoming.Address(), incomingTxID)
	a.mu.Lock()
	a.incomingTxID = &incomingTxID
	a.mu.Unlock()
	a.storeIncomingFundingID(incomingTxID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.discoverFunding(ctx, a.outgoing, outgoingTxID)
	})
	g.Go(func() error {
		return a.discoverFunding(ctx, a.incoming, incomingTxID)
	})
	return g.Wait()
}

func (a *Agent) requestFundingID(ctx context.Context) (state.TxID, error) {
	ticker := time.NewTicker(a.retryInterval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		txid, err := a.callFundingID(ctx)
		if err == nil {
			return txid, nil
		}
		a.log.Warnf("Requesting funding id from peer failed on attempt %d, retrying in %v: %v", attempt, a.retryInterval, err)
		select {
		case <-ctx.Done():
			return state.TxID{}, fmt.Errorf("requesting funding id: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Agent) callFundingID(ctx context.Context) (state.TxID, error) {
	resp, err := a.call(ctx, msg.Message{
		Type:         msg.TypeMessage,
		ProtocolData: []msg.ProtocolData{msg.FundingIDRequest()},
	})
	if err != nil {
		return state.TxID{}, err
	}
	pd, ok := resp.Find(msg.ProtocolGetFundingID)
	if !ok {
		return state.TxID{}, fmt.Errorf("funding id response without %s: %w", msg.ProtocolGetFundingID, ErrProtocol)
	}
	txid, err := msg.DecodeFundingID(pd)
	if err != nil {
		return state.TxID{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return txid, nil
}

// storeIncomingFundingID persists the remote participant's funding id under
// the incoming channel's funding key. Failing to persist it is logged only,
// since it is requested from the remote participant on every connect.
func (a *Agent) storeIncomingFundingID(txid state.TxID) {
	key := a.incoming.FundingKey()
	prev, ok, err := a.store.Get(key)
	if err != nil {
		a.log.Warnf("Loading incoming funding id: %v", err)
		return
	}
	if ok && prev == txid.String() {
		return
	}
	if ok {
		a.log.Warnf("Peer funding id changed from %s to %s", prev, txid)
	}
	if err := a.store.Put(key, txid.String()); err != nil {
		a.log.Warnf("Storing incoming funding id: %v", err)
	}
}

func (a *Agent) discoverFunding(ctx context.Context, ch *state.Channel, txid state.TxID) error {
	tx, err := a.ledger.GetRawTransaction(ctx, txid.Hash())
	if err != nil {
		return fmt.Errorf("getting %s funding tx %s: %w", ch.Direction(), txid, err)
	}
	index, err := ch.DiscoverFunding(tx)
	if err != nil {
		return fmt.Errorf("discovering %s funding: %w", ch.Direction(), err)
	}
	f, _ := ch.Funding()
	a.log.Infof("Discovered %s funding %s:%d with maximum %d", ch.Direction(), txid, index, f.Maximum)
	a.restore(ch)
	return nil
}

// restore restores the channel's persisted snapshot, if any. A snapshot that
// does not match the discovered funding belongs to an earlier channel and is
// ignored.
func (a *Agent) restore(ch *state.Channel) {
	v, ok, err := a.store.Get(ch.SnapshotKey())
	if err != nil {
		a.log.Warnf("Loading %s channel snapshot: %v", ch.Direction(), err)
		return
	}
	if !ok {
		return
	}
	s := state.Snapshot{}
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		a.log.Warnf("Decoding %s channel snapshot: %v", ch.Direction(), err)
		return
	}
	if err := ch.Restore(s); err != nil {
		a.log.Warnf("Ignoring %s channel snapshot: %v", ch.Direction(), err)
		return
	}
	a.log.Infof("Restored %s channel with balance %d", ch.Direction(), ch.Balance())
}

// persist stores a snapshot of the channel.
func (a *Agent) persist(ch *state.Channel) error {
	b, err := json.Marshal(ch.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding %s channel snapshot: %w", ch.Direction(), err)
	}
	if err := a.store.Put(ch.SnapshotKey(), string(b)); err != nil {
		return fmt.Errorf("storing %s channel snapshot: %w", ch.Direction(), err)
	}
	return nil
}

// call sends the request with a new request id and returns the remote
// participant's response. An Error reply is returned as an error.
func (a *Agent) call(ctx context.Context, m msg.Message) (msg.Message, error) {
	m.RequestID = a.newRequestID()
	resp, err := a.transport.Call(ctx, m)
	if err != nil {
		return msg.Message{}, fmt.Errorf("sending %s %s: %w", m.Type, m.RequestID, err)
	}
	switch resp.Type {
	case msg.TypeResponse:
		return resp, nil
	case msg.TypeError:
		return msg.Message{}, fmt.Errorf("peer replied to %s %s with error %q: %w", m.Type, m.RequestID, resp.Error, ErrProtocol)
	}
	return msg.Message{}, fmt.Errorf("peer replied to %s %s with %s: %w", m.Type, m.RequestID, resp.Type, ErrProtocol)
}
