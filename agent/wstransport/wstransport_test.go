package wstransport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utxopaychan/paychan/msg"
)

type handler struct {
	connected    chan struct{}
	disconnected chan struct{}
	onMessage    func(m msg.Message) (msg.Message, error)
}

func newHandler(f func(m msg.Message) (msg.Message, error)) *handler {
	return &handler{
		connected:    make(chan struct{}, 1),
		disconnected: make(chan struct{}, 1),
		onMessage:    f,
	}
}

func (h *handler) OnConnected(context.Context) error {
	h.connected <- struct{}{}
	return nil
}

func (h *handler) OnMessage(_ context.Context, m msg.Message) (msg.Message, error) {
	return h.onMessage(m)
}

func (h *handler) OnDisconnected(context.Context) error {
	h.disconnected <- struct{}{}
	return nil
}

func connPair(t *testing.T) (client, server *Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	type result struct {
		c   *Conn
		err error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := Accept(context.Background(), ln, nil)
		accepted <- result{c, err}
	}()

	client, err = Dial(context.Background(), "ws://"+ln.Addr().String(), nil)
	require.NoError(t, err)
	r := <-accepted
	require.NoError(t, r.err)
	return client, r.c
}

func run(ctx context.Context, c *Conn, h *handler) chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, h) }()
	return errCh
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		return nil
	}
}

func TestConn_call(t *testing.T) {
	client, server := connPair(t)
	serverH := newHandler(func(m msg.Message) (msg.Message, error) {
		if m.Amount == "0" {
			return msg.Message{}, errors.New("rejected")
		}
		return m.Response(msg.FundingIDRequest()), nil
	})
	clientH := newHandler(func(m msg.Message) (msg.Message, error) {
		return m.Response(), nil
	})
	serverErr := run(context.Background(), server, serverH)
	clientErr := run(context.Background(), client, clientH)
	wait(t, serverH.connected)
	wait(t, clientH.connected)

	ctx := context.Background()
	resp, err := client.Call(ctx, msg.Message{Type: msg.TypeTransfer, RequestID: "1", Amount: "5"})
	require.NoError(t, err)
	assert.Equal(t, msg.Message{
		Type:         msg.TypeResponse,
		RequestID:    "1",
		ProtocolData: []msg.ProtocolData{msg.FundingIDRequest()},
	}, resp)

	resp, err = client.Call(ctx, msg.Message{Type: msg.TypeTransfer, RequestID: "2", Amount: "0"})
	require.NoError(t, err)
	assert.Equal(t, msg.Message{Type: msg.TypeError, RequestID: "2", Error: "rejected"}, resp)

	// Calls go both ways.
	resp, err = server.Call(ctx, msg.Message{Type: msg.TypeMessage, RequestID: "1"})
	require.NoError(t, err)
	assert.Equal(t, msg.Message{Type: msg.TypeResponse, RequestID: "1"}, resp)

	require.NoError(t, client.Close())
	assert.NoError(t, waitErr(t, clientErr))
	assert.NoError(t, waitErr(t, serverErr))
	wait(t, serverH.disconnected)
	wait(t, clientH.disconnected)

	_, err = client.Call(ctx, msg.Message{Type: msg.TypeTransfer, RequestID: "3"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = server.Call(ctx, msg.Message{Type: msg.TypeTransfer, RequestID: "3"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConn_callContextDone(t *testing.T) {
	client, server := connPair(t)
	release := make(chan struct{})
	serverH := newHandler(func(m msg.Message) (msg.Message, error) {
		<-release
		return m.Response(), nil
	})
	clientH := newHandler(func(m msg.Message) (msg.Message, error) {
		return m.Response(), nil
	})
	serverErr := run(context.Background(), server, serverH)
	clientErr := run(context.Background(), client, clientH)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, msg.Message{Type: msg.TypeTransfer, RequestID: "1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, client.Close())
	assert.NoError(t, waitErr(t, clientErr))
	assert.NoError(t, waitErr(t, serverErr))
}

func TestConn_runContextDone(t *testing.T) {
	client, server := connPair(t)
	echo := func(m msg.Message) (msg.Message, error) { return m.Response(), nil }
	serverH := newHandler(echo)
	clientH := newHandler(echo)

	ctx, cancel := context.WithCancel(context.Background())
	serverErr := run(ctx, server, serverH)
	clientErr := run(context.Background(), client, clientH)
	wait(t, serverH.connected)

	cancel()
	assert.NoError(t, waitErr(t, serverErr))
	wait(t, serverH.disconnected)

	// The client sees the connection drop.
	assert.Error(t, waitErr(t, clientErr))
	wait(t, clientH.disconnected)
}

func TestAccept_contextDone(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Accept(ctx, ln, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTakeConn_closesConnectionAcceptedAfterDone(t *testing.T) {
	client, server := connPair(t)
	defer client.ws.Close()

	// The connection is handed over after ctx is done.
	accepted := atomic.Bool{}
	accepted.Store(true)
	conns := make(chan *websocket.Conn, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		conns <- server.ws
	}()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ws, err := takeConn(ctx, conns, &accepted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ws)

	// The client sees the connection closed rather than timing out.
	require.NoError(t, client.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = client.ws.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "read timed out: %v", err)
}

func TestTakeConn_stopsLaterAccepts(t *testing.T) {
	accepted := atomic.Bool{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := takeConn(ctx, make(chan *websocket.Conn, 1), &accepted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, accepted.Load())
}
