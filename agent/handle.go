package agent

import (
	"context"
	"fmt"
	"strconv"

	"github.com/utxopaychan/paychan/msg"
)

// OnMessage handles a request from the remote participant and returns the
// response to send back. If an error is returned the transport should reply
// with an Error message.
func (a *Agent) OnMessage(ctx context.Context, m msg.Message) (msg.Message, error) {
	a.log.Debugf("Handling %s %s", m.Type, m.RequestID)
	handler := handlerMap[m.Type]
	if handler == nil {
		err := fmt.Errorf("handling message %s %s: unrecognized message type %d: %w", m.Type, m.RequestID, m.Type, ErrProtocol)
		a.errorEvent(err)
		return msg.Message{}, err
	}
	resp, err := handler(a, ctx, m)
	if err != nil {
		err = fmt.Errorf("handling message %s %s: %w", m.Type, m.RequestID, err)
		a.log.Errorf("%v", err)
		a.errorEvent(err)
		return msg.Message{}, err
	}
	return resp, nil
}

var handlerMap = map[msg.Type]func(*Agent, context.Context, msg.Message) (msg.Message, error){
	msg.TypeMessage:  (*Agent).handleMessage,
	msg.TypeTransfer: (*Agent).handleTransfer,
}

func (a *Agent) handleMessage(_ context.Context, m msg.Message) (msg.Message, error) {
	if _, ok := m.Find(msg.ProtocolGetFundingID); ok {
		return a.handleGetFundingID(m)
	}
	return msg.Message{}, fmt.Errorf("no supported protocol data: %w", ErrProtocol)
}

func (a *Agent) handleGetFundingID(m msg.Message) (msg.Message, error) {
	a.mu.Lock()
	txid := a.outgoingTxID
	a.mu.Unlock()
	if txid == nil {
		return msg.Message{}, fmt.Errorf("outgoing channel not yet funded")
	}
	pd, err := msg.EncodeFundingID(*txid)
	if err != nil {
		return msg.Message{}, err
	}
	return m.Response(pd), nil
}

// handleTransfer verifies the claim carried by a transfer and, if it is
// accepted, reports the increase in balance as a payment received.
func (a *Agent) handleTransfer(_ context.Context, m msg.Message) (msg.Message, error) {
	if a.Status() != StatusActive {
		return msg.Message{}, ErrNotActive
	}
	pd, ok := m.Find(msg.ProtocolClaim)
	if !ok {
		return msg.Message{}, fmt.Errorf("transfer without claim: %w", ErrProtocol)
	}
	claim, err := msg.DecodeClaim(pd)
	if err != nil {
		return msg.Message{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	a.receiveMu.Lock()
	defer a.receiveMu.Unlock()

	// The claim is authoritative and the notified amount is only checked
	// against it for logging.
	previous := a.incoming.Balance()
	if notified, err := strconv.ParseInt(m.Amount, 10, 64); err != nil {
		a.log.Warnf("Transfer %s with invalid amount %q: %v", m.RequestID, m.Amount, err)
	} else if notified != claim.Amount-previous {
		a.log.Warnf("Amounts out of sync: peer sent %d, claim adds %d", notified, claim.Amount-previous)
	}

	delta, err := a.incoming.VerifyClaim(claim)
	if err != nil {
		return msg.Message{}, fmt.Errorf("verifying claim: %w", err)
	}
	a.log.Infof("Received %d, balance %d", delta, claim.Amount)
	a.log.Tracef("Accepted claim: %v", newLogClosure(func() string {
		return fmt.Sprintf("amount=%d signature=%x", claim.Amount, claim.Signature)
	}))
	if err := a.persist(a.incoming); err != nil {
		a.log.Errorf("Persisting incoming channel: %v", err)
		a.errorEvent(err)
	}
	a.event(PaymentReceivedEvent{Amount: delta, Claim: claim})
	return m.Response(), nil
}
