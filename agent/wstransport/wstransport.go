// Package wstransport carries agent messages over a websocket connection.
//
// Each message is sent as one JSON encoded text frame. Requests are matched
// to their responses by request id, and requests from the remote participant
// are handled one at a time in the order they are received.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btclog/v2"
	"github.com/gorilla/websocket"
	"github.com/utxopaychan/paychan/agent"
	"github.com/utxopaychan/paychan/msg"
)

var ErrClosed = errors.New("connection closed")

// Conn is a websocket connection to the remote participant. It implements
// agent.Transport, and Run delivers the remote participant's requests to an
// agent.Handler.
type Conn struct {
	ws  *websocket.Conn
	log btclog.Logger

	writeMu sync.Mutex

	// mu is a lock for the mutable fields of this type.
	mu sync.Mutex

	pending map[string]chan msg.Message
	closed  bool
	done    chan struct{}
}

var _ agent.Transport = (*Conn)(nil)

func New(ws *websocket.Conn, log btclog.Logger) *Conn {
	if log == nil {
		log = btclog.Disabled
	}
	return &Conn{
		ws:      ws,
		log:     log,
		pending: map[string]chan msg.Message{},
		done:    make(chan struct{}),
	}
}

// Dial connects to the remote participant's websocket at url.
func Dial(ctx context.Context, url string, log btclog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	c := New(ws, log)
	c.log.Infof("Connected to %v", ws.RemoteAddr())
	return c, nil
}

// Listen listens on addr and returns the first websocket connection accepted.
func Listen(ctx context.Context, addr string, log btclog.Logger) (*Conn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return Accept(ctx, ln, log)
}

// Accept serves websocket upgrades on ln until the first connection is
// accepted, then closes ln.
func Accept(ctx context.Context, ln net.Listener, log btclog.Logger) (*Conn, error) {
	if log == nil {
		log = btclog.Disabled
	}
	conns := make(chan *websocket.Conn, 1)
	accepted := atomic.Bool{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accepted.Load() {
			http.Error(w, "already connected", http.StatusConflict)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("Upgrading connection from %s: %v", r.RemoteAddr, err)
			return
		}
		if !accepted.CompareAndSwap(false, true) {
			ws.Close()
			return
		}
		conns <- ws
	})}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Serving on %v: %v", ln.Addr(), err)
		}
	}()

	// Closing the server does not close hijacked connections.
	defer srv.Close()
	ws, err := takeConn(ctx, conns, &accepted)
	if err != nil {
		return nil, err
	}
	log.Infof("Accepted connection from %v", ws.RemoteAddr())
	return New(ws, log), nil
}

// takeConn waits for the accepted connection. If ctx is done first, no
// connection is accepted afterwards, and one already accepted is closed.
func takeConn(ctx context.Context, conns <-chan *websocket.Conn, accepted *atomic.Bool) (*websocket.Conn, error) {
	select {
	case ws := <-conns:
		return ws, nil
	case <-ctx.Done():
		if !accepted.CompareAndSwap(false, true) {
			ws := <-conns
			ws.Close()
		}
		return nil, ctx.Err()
	}
}

// Call sends the request and waits for the response with the same request
// id.
func (c *Conn) Call(ctx context.Context, m msg.Message) (msg.Message, error) {
	ch := make(chan msg.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return msg.Message{}, ErrClosed
	}
	if _, ok := c.pending[m.RequestID]; ok {
		c.mu.Unlock()
		return msg.Message{}, fmt.Errorf("request %s already pending", m.RequestID)
	}
	c.pending[m.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, m.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(m); err != nil {
		return msg.Message{}, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		return msg.Message{}, ErrClosed
	case <-ctx.Done():
		return msg.Message{}, ctx.Err()
	}
}

func (c *Conn) write(m msg.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("writing %s %s: %w", m.Type, m.RequestID, err)
	}
	if err := msg.NewEncoder(w).Encode(m); err != nil {
		w.Close()
		return fmt.Errorf("encoding %s %s: %w", m.Type, m.RequestID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing %s %s: %w", m.Type, m.RequestID, err)
	}
	return nil
}

// Run calls h.OnConnected and then reads messages until the connection is
// closed or ctx is done, after which it calls h.OnDisconnected. OnConnected
// runs concurrently with reading so that it can make calls.
func (c *Conn) Run(ctx context.Context, h agent.Handler) error {
	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	connectCtx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	connected := make(chan struct{})
	go func() {
		defer close(connected)
		if err := h.OnConnected(connectCtx); err != nil {
			c.log.Errorf("Connecting: %v", err)
		}
	}()

	err := c.readLoop(ctx, h)

	c.mu.Lock()
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.ws.Close()
	cancelConnect()
	<-connected

	// Disconnecting may submit a close, which must not be cut short by ctx.
	if derr := h.OnDisconnected(context.WithoutCancel(ctx)); derr != nil {
		c.log.Errorf("Disconnecting: %v", derr)
	}
	if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (c *Conn) readLoop(ctx context.Context, h agent.Handler) error {
	for {
		_, r, err := c.ws.NextReader()
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		m := msg.Message{}
		if err := msg.NewDecoder(r).Decode(&m); err != nil {
			c.log.Warnf("Decoding message: %v", err)
			continue
		}
		switch m.Type {
		case msg.TypeResponse, msg.TypeError:
			c.deliver(m)
		default:
			c.handle(ctx, h, m)
		}
	}
}

func (c *Conn) deliver(m msg.Message) {
	c.mu.Lock()
	ch, ok := c.pending[m.RequestID]
	c.mu.Unlock()
	if !ok {
		c.log.Warnf("Dropping %s for unknown request %s", m.Type, m.RequestID)
		return
	}
	select {
	case ch <- m:
	default:
		c.log.Warnf("Dropping duplicate %s for request %s", m.Type, m.RequestID)
	}
}

func (c *Conn) handle(ctx context.Context, h agent.Handler, m msg.Message) {
	resp, err := h.OnMessage(ctx, m)
	if err != nil {
		resp = m.ErrorResponse(err)
	}
	if err := c.write(resp); err != nil {
		c.log.Errorf("Replying to %s %s: %v", m.Type, m.RequestID, err)
	}
}

// Close sends a close frame and closes the connection, which stops Run.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	if err != nil {
		c.ws.Close()
		return fmt.Errorf("closing: %w", err)
	}
	return nil
}
