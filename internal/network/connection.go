package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
	"github.com/udisondev/gunnet/internal/protocol"
)

const (
	defaultSendQueueSize       = 256
	defaultWriteTimeout        = 5 * time.Second
	defaultMaxChecksumFailures = 3
	inboundQueueSize           = 16
)

// Handler receives every decrypted packet of a connection, in arrival order.
// Calls for one connection never overlap.
type Handler interface {
	HandlePacket(ctx context.Context, c *Connection, pkt protocol.Packet) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c *Connection, pkt protocol.Packet) error

// HandlePacket calls f.
func (f HandlerFunc) HandlePacket(ctx context.Context, c *Connection, pkt protocol.Packet) error {
	return f(ctx, c, pkt)
}

// DisconnectHandler is implemented by handlers that keep per-connection state.
type DisconnectHandler interface {
	OnDisconnect(c *Connection)
}

// Options tune one connection. Zero values select defaults.
type Options struct {
	ReadTimeout         time.Duration // 0 disables the idle timeout
	WriteTimeout        time.Duration
	SendQueueSize       int
	MaxChecksumFailures int
	ReadPool            *BytePool
}

// Connection drives one client socket through three loops: receive (socket →
// inbound queue), process (inbound bytes → packets → handler) and send
// (outbound queue → socket).
type Connection struct {
	conn    net.Conn
	ip      string
	id      int32
	codec   *protocol.Codec
	handler Handler
	opts    Options

	state atomic.Int32

	inbound chan []byte // receive loop → process loop, pool-backed chunks

	// Outbound. sendMu keeps sequence numbers in queue order.
	sendMu   sync.Mutex
	sequence uint16
	sendCh   chan []byte

	closeCh   chan struct{}
	closeOnce sync.Once
	flushCh   chan struct{}
	flushOnce sync.Once

	mu      sync.Mutex
	account string
	value   any
}

// NewConnection wraps conn. The loops start with Run.
func NewConnection(conn net.Conn, codec *protocol.Codec, handler Handler, opts Options) (*Connection, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		// net.Pipe and unix sockets have no port
		host = conn.RemoteAddr().String()
	}

	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.MaxChecksumFailures <= 0 {
		opts.MaxChecksumFailures = defaultMaxChecksumFailures
	}
	if opts.ReadPool == nil {
		opts.ReadPool = NewBytePool(constants.DefaultReadBufSize)
	}
	if codec == nil {
		return nil, fmt.Errorf("connection %s: nil codec", host)
	}
	if handler == nil {
		return nil, fmt.Errorf("connection %s: nil handler", host)
	}

	c := &Connection{
		conn:    conn,
		ip:      host,
		id:      rand.Int32(),
		codec:   codec,
		handler: handler,
		opts:    opts,
		inbound: make(chan []byte, inboundQueueSize),
		sendCh:  make(chan []byte, opts.SendQueueSize),
		closeCh: make(chan struct{}),
		flushCh: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c, nil
}

// ID returns the random identifier assigned at accept time.
func (c *Connection) ID() int32 {
	return c.id
}

// IP returns the client's remote IP address.
func (c *Connection) IP() string {
	return c.ip
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// State returns the current lifecycle stage.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Account returns the account bound to this connection, if any.
func (c *Connection) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// SetAccount binds an account name to this connection.
func (c *Connection) SetAccount(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = name
}

// Value returns handler-specific state stored with SetValue.
func (c *Connection) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// SetValue stores handler-specific state.
func (c *Connection) SetValue(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// Run starts the three loops and blocks until all of them exit and the socket is closed.
// It returns nil after an orderly shutdown (peer close, Close, or ctx cancel) and
// the first fatal error otherwise.
func (c *Connection) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateRunning)) {
		return fmt.Errorf("connection %s: run in state %s", c.ip, c.State())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			c.CloseAsync()
		case <-c.closeCh:
		}
		return nil
	})
	g.Go(func() error { return c.receiveLoop() })
	g.Go(func() error { return c.processLoop(gctx) })
	g.Go(func() error { return c.sendLoop() })

	err := g.Wait()
	c.CloseAsync()
	c.drain()
	c.state.Store(int32(StateClosed))

	if dh, ok := c.handler.(DisconnectHandler); ok {
		dh.OnDisconnect(c)
	}
	return err
}

// receiveLoop reads socket bytes into pooled chunks for the process loop.
// It owns c.inbound and closes it on exit.
func (c *Connection) receiveLoop() error {
	defer close(c.inbound)

	for {
		if c.opts.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
				if c.closing() {
					return nil
				}
				c.CloseAsync()
				return fmt.Errorf("setting read deadline: %w", err)
			}
		}

		buf := c.opts.ReadPool.Get(constants.DefaultReadBufSize)
		n, err := c.conn.Read(buf)
		if n > 0 {
			select {
			case c.inbound <- buf[:n]:
			case <-c.closeCh:
				c.opts.ReadPool.Put(buf)
				return nil
			}
		} else {
			c.opts.ReadPool.Put(buf)
		}

		if err != nil {
			if c.closing() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				slog.Debug("peer closed connection", "remote", c.ip)
				return nil
			}
			c.CloseAsync()
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("reading from %s: %w", c.ip, ErrIdleTimeout)
			}
			return fmt.Errorf("reading from %s: %w", c.ip, err)
		}
	}
}

// processLoop delimits units from received bytes and dispatches them. It waits
// on the inbound queue whenever the buffered bytes do not hold a whole unit.
func (c *Connection) processLoop(ctx context.Context) error {
	framer := protocol.NewFramer(c.codec)
	failures := 0

	for {
		var chunk []byte
		var ok bool
		select {
		case chunk, ok = <-c.inbound:
		case <-c.closeCh:
			return nil
		}
		if !ok {
			// Peer closed: everything complete was already dispatched.
			if err := framer.Close(); err != nil {
				c.CloseAsync()
				return fmt.Errorf("connection %s: %w", c.ip, err)
			}
			c.CloseAfterFlush()
			return nil
		}
		framer.Feed(chunk)
		c.opts.ReadPool.Put(chunk)

		for {
			pkt, err := framer.Next()
			if errors.Is(err, protocol.ErrIncomplete) {
				break
			}
			if errors.Is(err, crypto.ErrChecksumMismatch) {
				failures++
				slog.Warn("dropping packet header", "remote", c.ip, "failures", failures, "err", err)
				if failures >= c.opts.MaxChecksumFailures {
					c.CloseAsync()
					return fmt.Errorf("connection %s: %w", c.ip, ErrTooManyChecksumFailures)
				}
				continue
			}
			if errors.Is(err, crypto.ErrPayloadCipher) {
				slog.Warn("dropping undecryptable packet", "remote", c.ip, "err", err)
				continue
			}
			if err != nil {
				c.CloseAsync()
				return fmt.Errorf("connection %s: %w", c.ip, err)
			}
			failures = 0

			if c.closing() {
				return nil
			}
			if err := c.handler.HandlePacket(ctx, c, pkt); err != nil {
				if errors.Is(err, ErrCloseConnection) {
					c.CloseAfterFlush()
					return nil
				}
				slog.Error("packet handler failed", "remote", c.ip, "id", fmt.Sprintf("0x%04x", uint16(pkt.Header.ID)), "err", err)
			}
		}
	}
}

// sendLoop writes queued units in order, batching whatever is already queued
// into one flush.
func (c *Connection) sendLoop() error {
	bufs := make(net.Buffers, 0, 64)

	for {
		select {
		case unit := <-c.sendCh:
			bufs = append(bufs[:0], unit)
			for range len(c.sendCh) {
				bufs = append(bufs, <-c.sendCh)
			}
			if err := c.flush(bufs); err != nil {
				if c.closing() {
					return nil
				}
				c.CloseAsync()
				return err
			}

		case <-c.flushCh:
			// Holding sendMu waits out a Send that passed its flushing check,
			// so its unit is in the queue before the final drain.
			c.sendMu.Lock()
			bufs = bufs[:0]
			for range len(c.sendCh) {
				bufs = append(bufs, <-c.sendCh)
			}
			c.sendMu.Unlock()
			err := c.flush(bufs)
			c.CloseAsync()
			if err != nil && !c.closing() {
				return err
			}
			return nil

		case <-c.closeCh:
			return nil
		}
	}
}

func (c *Connection) flush(bufs net.Buffers) error {
	if len(bufs) == 0 {
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, ok := c.conn.(*net.TCPConn); ok && len(bufs) > 1 {
		// writev; the runtime retries short writes.
		if _, err := bufs.WriteTo(c.conn); err != nil {
			return fmt.Errorf("writing %s: %w", c.ip, err)
		}
		return nil
	}
	for _, unit := range bufs {
		if err := writeFull(c.conn, unit); err != nil {
			return fmt.Errorf("writing %s: %w", c.ip, err)
		}
	}
	return nil
}

// writeFull writes p completely, retrying the unsent remainder after short writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return fmt.Errorf("writing: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("writing: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// Send encodes body as packet id with the next outbound sequence number and
// queues it. It blocks while the queue is full, up to the write timeout.
func (c *Connection) Send(id int16, body []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closing() || c.flushing() {
		return ErrConnectionClosed
	}

	h := crypto.Header{
		Random:   byte(rand.Uint32()),
		ID:       id,
		Sequence: int16(c.sequence),
	}
	unit, err := c.codec.Encode(h, body)
	if err != nil {
		return fmt.Errorf("encoding packet 0x%04x: %w", uint16(id), err)
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()
	select {
	case c.sendCh <- unit:
		c.sequence++
		return nil
	case <-timer.C:
		slog.Warn("send queue full, disconnecting slow client", "remote", c.ip)
		c.CloseAsync()
		return fmt.Errorf("packet 0x%04x to %s: %w", uint16(id), c.ip, ErrSendTimeout)
	case <-c.flushCh:
		return ErrConnectionClosed
	case <-c.closeCh:
		return ErrConnectionClosed
	}
}

// CloseAfterFlush stops accepting new packets and closes the connection once
// every queued unit has been written. Safe to call multiple times.
func (c *Connection) CloseAfterFlush() {
	c.flushOnce.Do(func() {
		c.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown))
		close(c.flushCh)
	})
}

// CloseAsync requests shutdown without waiting for the loops to exit.
// Pending reads and writes are cancelled by closing the socket. Safe to call
// multiple times and from any goroutine.
func (c *Connection) CloseAsync() {
	c.closeOnce.Do(func() {
		c.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown))
		close(c.closeCh)
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Debug("closing socket", "remote", c.ip, "err", err)
		}
	})
}

// Close requests shutdown. For a connection that was never started it
// releases the socket immediately.
func (c *Connection) Close() error {
	c.CloseAsync()
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed))
	return nil
}

func (c *Connection) closing() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Connection) flushing() bool {
	select {
	case <-c.flushCh:
		return true
	default:
		return false
	}
}

// drain releases buffers left in the queues after all loops exited.
func (c *Connection) drain() {
	for chunk := range c.inbound {
		c.opts.ReadPool.Put(chunk)
	}
	for {
		select {
		case <-c.sendCh:
		default:
			return
		}
	}
}
