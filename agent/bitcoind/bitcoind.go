// Package bitcoind implements the agent's ledger with a bitcoind compatible
// JSON-RPC node.
package bitcoind

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/utxopaychan/paychan/agent"
)

type Config struct {
	// Host is the host and port of the node's RPC server.
	Host string
	User string
	Pass string
	// DisableTLS connects over plain HTTP.
	DisableTLS bool
	// AllowHighFees is passed to sendrawtransaction.
	AllowHighFees bool
}

// Client is a ledger backed by a node's wallet and transaction index.
// GetRawTransaction requires the node to be run with txindex for
// transactions the wallet does not know of.
type Client struct {
	rpc           *rpcclient.Client
	allowHighFees bool
}

var _ agent.Ledger = (*Client)(nil)

func New(c Config) (*Client, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         c.Host,
		User:         c.User,
		Pass:         c.Pass,
		DisableTLS:   c.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("creating rpc client for %s: %w", c.Host, err)
	}
	return &Client{rpc: rpc, allowHighFees: c.AllowHighFees}, nil
}

func (c *Client) Close() {
	c.rpc.Shutdown()
}

func (c *Client) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := receive(ctx, c.rpc.GetRawTransactionAsync(&txid).Receive)
	if err != nil {
		return nil, fmt.Errorf("getting raw transaction %s: %w", txid, err)
	}
	return tx.MsgTx(), nil
}

func (c *Client) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	txid, err := receive(ctx, c.rpc.SendRawTransactionAsync(tx, c.allowHighFees).Receive)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("sending raw transaction %s: %w", tx.TxHash(), err)
	}
	return *txid, nil
}

func (c *Client) SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error) {
	txid, err := receive(ctx, c.rpc.SendToAddressAsync(addr, amount).Receive)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("sending %v to %s: %w", amount, addr, err)
	}
	return *txid, nil
}

// receive waits for an rpc result until ctx is done. The request is not
// cancelled when ctx is done, its result is discarded.
func receive[T any](ctx context.Context, f func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := f()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
