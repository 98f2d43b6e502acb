package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/utxopaychan/paychan/keypair"
	"github.com/utxopaychan/paychan/script"
	"github.com/utxopaychan/paychan/txbuild"
)

var (
	ErrFundingOutputNotFound = errors.New("funding output not found")
	ErrFundingMismatch       = errors.New("funding does not match funding already discovered")
	ErrNoFunding             = errors.New("channel funding not discovered")
	ErrInvalidSignature      = errors.New("invalid claim signature")
	ErrNonIncreasingClaim    = errors.New("claim amount does not increase balance")
	ErrOverFunded            = errors.New("claim amount exceeds funded maximum")
	ErrWrongDirection        = errors.New("operation not valid for channel direction")
	ErrNoClaim               = errors.New("no claim")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
)

// Direction is the direction value flows in a channel from the point of view
// of the local participant.
type Direction string

const (
	// DirectionIncoming is a channel funded by the remote participant, where
	// the local participant is the receiver.
	DirectionIncoming = Direction("incoming")
	// DirectionOutgoing is a channel funded by the local participant, where
	// the local participant is the sender.
	DirectionOutgoing = Direction("outgoing")
)

func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// Funding identifies the output locked under the channel's redeem script.
type Funding struct {
	TxID        TxID
	OutputIndex uint32
	Maximum     int64
}

func (f Funding) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: f.TxID.Hash(), Index: f.OutputIndex}
}

// Claim is the cumulative amount owed to the receiver and the sender's
// signature, with sighash type, over the closure transaction paying it.
type Claim struct {
	Amount    int64
	Signature []byte
}

type Config struct {
	Direction Direction

	// Local is the local participant's keypair.
	Local *keypair.Full
	// Remote is the remote participant's public key.
	Remote *keypair.FromAddress

	// Timeout is the absolute lock time after which the sender can reclaim
	// the channel's funds.
	Timeout uint32
	Network *chaincfg.Params

	// Fee is paid by closure and expiry transactions. Defaults to
	// txbuild.DefaultFee.
	Fee int64
}

type Channel struct {
	direction Direction
	sender    *keypair.FromAddress
	receiver  *keypair.FromAddress
	local     *keypair.Full
	timeout   uint32
	fee       int64

	redeemScript []byte
	pkScript     []byte
	address      btcutil.Address

	mu          sync.Mutex
	funding     *Funding
	balance     int64
	latestClaim *Claim
}

// NewChannel compiles the channel's redeem script with the participants in
// the roles given by the direction.
func NewChannel(c Config) (*Channel, error) {
	if !c.Direction.Valid() {
		return nil, fmt.Errorf("invalid direction %q", c.Direction)
	}
	if c.Local == nil {
		return nil, keypair.ErrMissingSecret
	}
	if c.Remote == nil {
		return nil, keypair.ErrMissingPublicKey
	}
	if c.Network == nil {
		return nil, fmt.Errorf("missing network")
	}
	fee := c.Fee
	if fee == 0 {
		fee = txbuild.DefaultFee
	}
	if fee < 0 {
		return nil, fmt.Errorf("invalid fee %d: cannot be negative", fee)
	}

	channel := &Channel{
		direction: c.Direction,
		local:     c.Local,
		timeout:   c.Timeout,
		fee:       fee,
	}
	if c.Direction == DirectionOutgoing {
		channel.sender = c.Local.FromAddress()
		channel.receiver = c.Remote
	} else {
		channel.sender = c.Remote
		channel.receiver = c.Local.FromAddress()
	}

	var err error
	channel.redeemScript, err = script.Compile(channel.sender.PublicKey(), channel.receiver.PublicKey(), c.Timeout)
	if err != nil {
		return nil, err
	}
	channel.pkScript, err = script.PayToScriptHash(channel.redeemScript)
	if err != nil {
		return nil, fmt.Errorf("building funding output script: %w", err)
	}
	channel.address, err = script.Address(channel.redeemScript, c.Network)
	if err != nil {
		return nil, err
	}
	return channel, nil
}

func (c *Channel) Direction() Direction {
	return c.direction
}

// Sender returns the participant who funds the channel and signs claims.
func (c *Channel) Sender() *keypair.FromAddress {
	return c.sender
}

// Receiver returns the participant who is paid by claims.
func (c *Channel) Receiver() *keypair.FromAddress {
	return c.receiver
}

func (c *Channel) Timeout() uint32 {
	return c.timeout
}

func (c *Channel) Fee() int64 {
	return c.fee
}

func (c *Channel) RedeemScript() []byte {
	return append([]byte(nil), c.redeemScript...)
}

// Address returns the P2SH address that funds the channel.
func (c *Channel) Address() btcutil.Address {
	return c.address
}

// FundingKey is the store key of the channel's funding transaction id. It is
// unique per direction and per channel address.
func (c *Channel) FundingKey() string {
	return fmt.Sprintf("funding_txid_%s_%s", c.direction, c.address.EncodeAddress())
}

// SnapshotKey is the store key of the channel's snapshot.
func (c *Channel) SnapshotKey() string {
	return fmt.Sprintf("channel_%s_%s", c.direction, c.address.EncodeAddress())
}

// Balance returns the cumulative amount owed to the receiver by the latest
// claim.
func (c *Channel) Balance() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}

func (c *Channel) Funding() (Funding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.funding == nil {
		return Funding{}, false
	}
	return *c.funding, true
}

func (c *Channel) LatestClaim() (Claim, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latestClaim == nil {
		return Claim{}, false
	}
	return copyClaim(*c.latestClaim), true
}

// Spendable is the most that can be claimed, the funded maximum less the fee
// paid by the closure transaction.
func (c *Channel) Spendable() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spendable()
}

func (c *Channel) spendable() int64 {
	if c.funding == nil {
		return 0
	}
	return c.funding.Maximum - c.fee
}

func (c *Channel) closureTx(f Funding, amount int64) (*wire.MsgTx, error) {
	return txbuild.Closure(txbuild.ClosureParams{
		FundingOutPoint: f.OutPoint(),
		FundedMaximum:   f.Maximum,
		Receiver:        c.receiver.Address(),
		Sender:          c.sender.Address(),
		Amount:          amount,
		Fee:             c.fee,
	})
}

func copyClaim(cl Claim) Claim {
	cl.Signature = append([]byte(nil), cl.Signature...)
	return cl
}
