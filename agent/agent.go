// Package agent contains an agent that coordinates a pair of unidirectional
// payment channels with a remote participant over a message transport: the
// funding id handshake, claims sent and received, and closes.
//
// The agent does not own its transport. The transport calls the agent's
// Handler methods when it connects, receives a message, and disconnects, and
// the agent calls the transport to send requests to the remote participant.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog/v2"
	"github.com/google/uuid"
	"github.com/utxopaychan/paychan/agent/submit"
	"github.com/utxopaychan/paychan/keypair"
	"github.com/utxopaychan/paychan/msg"
	"github.com/utxopaychan/paychan/state"
)

var (
	ErrMissingSecret        = errors.New("missing secret")
	ErrMissingPeerPublicKey = errors.New("missing peer public key")
	ErrMissingTimeout       = errors.New("missing timeout")
	ErrMissingFundingAmount = errors.New("missing funding amount")
	ErrMissingLedger        = errors.New("missing ledger")
	ErrMissingStore         = errors.New("missing store")
	ErrMissingTransport     = errors.New("missing transport")
	ErrNotActive            = errors.New("agent not active")
	ErrProtocol             = errors.New("protocol error")
)

// DefaultRetryInterval is the interval between requests for the remote
// participant's funding id while connecting.
const DefaultRetryInterval = 5 * time.Second

// Ledger is the ledger node the agent funds channels with, looks up funding
// transactions with, and submits closes to.
type Ledger interface {
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
	SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)
	SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error)
}

// Store persists funding ids and channel snapshots across restarts.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Put(key, value string) error
}

// Transport sends a request to the remote participant and returns its reply,
// which is either a Response or an Error message.
type Transport interface {
	Call(ctx context.Context, m msg.Message) (msg.Message, error)
}

// Handler is implemented by Agent and is called by a transport.
type Handler interface {
	OnConnected(ctx context.Context) error
	OnMessage(ctx context.Context, m msg.Message) (msg.Message, error)
	OnDisconnected(ctx context.Context) error
}

var _ Handler = (*Agent)(nil)

type Status string

const (
	StatusCreated    = Status("created")
	StatusConnecting = Status("connecting")
	StatusActive     = Status("active")
	StatusClosing    = Status("closing")
	StatusClosed     = Status("closed")
)

type Config struct {
	// Secret is the local participant's keypair.
	Secret *keypair.Full
	// PeerPublicKey is the remote participant's public key.
	PeerPublicKey *keypair.FromAddress

	// Timeout is the absolute lock time of both channels.
	Timeout uint32
	// Network defaults to the main network.
	Network *chaincfg.Params

	// FundingAmount is paid into the outgoing channel when it is first
	// created. Required.
	FundingAmount btcutil.Amount
	// Fee is paid by closure and expiry transactions.
	Fee int64
	// RetryInterval defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	Ledger    Ledger
	Store     Store
	Transport Transport

	// NewRequestID generates request ids. Defaults to random UUIDs.
	NewRequestID func() string

	Log btclog.Logger

	Events chan<- Event
}

// Agent coordinates an incoming and an outgoing payment channel with a remote
// participant.
type Agent struct {
	network       *chaincfg.Params
	local         *keypair.Full
	peer          *keypair.FromAddress
	fundingAmount btcutil.Amount
	retryInterval time.Duration

	ledger       Ledger
	submitter    *submit.Submitter
	store        Store
	transport    Transport
	newRequestID func() string
	log          btclog.Logger
	events       chan<- Event

	incoming *state.Channel
	outgoing *state.Channel

	// sendMu is held from creating a claim until it is persisted and sent,
	// and receiveMu from verifying a claim until it is persisted, so the
	// store never holds a lower claim than one already issued or accepted.
	sendMu    sync.Mutex
	receiveMu sync.Mutex

	// mu is a lock for the mutable fields of this type. It should be locked
	// when reading or writing any of the mutable fields. The mutable fields are
	// listed below. If pushing to a chan, such as Events, it is unnecessary to
	// lock.
	mu sync.Mutex

	status        Status
	outgoingTxID  *state.TxID
	incomingTxID  *state.TxID
	cancelConnect context.CancelFunc
}

// NewAgent validates the config and creates the agent's incoming and outgoing
// channels. No state is created if the config is invalid.
func NewAgent(c Config) (*Agent, error) {
	switch {
	case c.Secret == nil:
		return nil, ErrMissingSecret
	case c.PeerPublicKey == nil:
		return nil, ErrMissingPeerPublicKey
	case c.Timeout == 0:
		return nil, ErrMissingTimeout
	case c.FundingAmount <= 0:
		return nil, ErrMissingFundingAmount
	case c.Ledger == nil:
		return nil, ErrMissingLedger
	case c.Store == nil:
		return nil, ErrMissingStore
	case c.Transport == nil:
		return nil, ErrMissingTransport
	}

	a := &Agent{
		network:       c.Network,
		local:         c.Secret,
		peer:          c.PeerPublicKey,
		fundingAmount: c.FundingAmount,
		retryInterval: c.RetryInterval,
		ledger:        c.Ledger,
		store:         c.Store,
		transport:     c.Transport,
		newRequestID:  c.NewRequestID,
		log:           c.Log,
		events:        c.Events,
		status:        StatusCreated,
	}
	if a.network == nil {
		a.network = &chaincfg.MainNetParams
	}
	if a.retryInterval <= 0 {
		a.retryInterval = DefaultRetryInterval
	}
	if a.newRequestID == nil {
		a.newRequestID = uuid.NewString
	}
	if a.log == nil {
		a.log = btclog.Disabled
	}
	a.submitter = &submit.Submitter{RawTxSender: a.ledger, Log: a.log}

	channelConfig := state.Config{
		Local:   a.local,
		Remote:  a.peer,
		Timeout: c.Timeout,
		Network: a.network,
		Fee:     c.Fee,
	}
	var err error
	channelConfig.Direction = state.DirectionIncoming
	a.incoming, err = state.NewChannel(channelConfig)
	if err != nil {
		return nil, fmt.Errorf("creating incoming channel: %w", err)
	}
	channelConfig.Direction = state.DirectionOutgoing
	a.outgoing, err = state.NewChannel(channelConfig)
	if err != nil {
		return nil, fmt.Errorf("creating outgoing channel: %w", err)
	}
	return a, nil
}

func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Incoming returns the channel paying the local participant.
func (a *Agent) Incoming() *state.Channel {
	return a.incoming
}

// Outgoing returns the channel paying the remote participant.
func (a *Agent) Outgoing() *state.Channel {
	return a.outgoing
}

func (a *Agent) Network() *chaincfg.Params {
	return a.network
}

// Prefix returns the ledger address prefix shared by both participants. It
// is derived from both participants' addresses with the greater address
// first, so both participants derive the same prefix.
func (a *Agent) Prefix() string {
	local := a.local.Address().EncodeAddress()
	peer := a.peer.Address().EncodeAddress()
	if local > peer {
		return "g.crypto." + a.network.Name + "." + local + "~" + peer + "."
	}
	return "g.crypto." + a.network.Name + "." + peer + "~" + local + "."
}

// Snapshot is a snapshot of the agent's state.
type Snapshot struct {
	Status       Status
	IncomingTxID *state.TxID `json:",omitempty"`
	OutgoingTxID *state.TxID `json:",omitempty"`
	Incoming     state.Snapshot
	Outgoing     state.Snapshot
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	s := Snapshot{
		Status:       a.status,
		IncomingTxID: a.incomingTxID,
		OutgoingTxID: a.outgoingTxID,
	}
	a.mu.Unlock()
	s.Incoming = a.incoming.Snapshot()
	s.Outgoing = a.outgoing.Snapshot()
	return s
}

// Close stops an in progress connect. It does not close any channel.
func (a *Agent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelConnect != nil {
		a.cancelConnect()
		a.cancelConnect = nil
	}
}

func (a *Agent) setStatus(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func (a *Agent) event(e Event) {
	if a.events != nil {
		a.events <- e
	}
}

func (a *Agent) errorEvent(err error) {
	a.event(ErrorEvent{Err: err})
}
