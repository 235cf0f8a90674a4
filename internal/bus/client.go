package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	apperrors "github.com/focusflow/host/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
)

// ClientOptions tunes the relay connection.
type ClientOptions struct {
	// InitialBackoff is the first reconnect delay. Default 250ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Default 10s.
	MaxBackoff time.Duration

	// OnConnect, if set, is called after every successful (re)connect.
	OnConnect func()
}

// Client is a Bus backed by a websocket connection to the relay.
type Client struct {
	url  string
	opts ClientOptions

	mu     sync.RWMutex
	conn   *websocket.Conn
	subs   map[int]func(Envelope)
	nextID int

	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial starts a Client for the relay at addr (host:port) on behalf of tabID.
// It returns immediately; the connection is established in the background
// and re-established whenever it drops.
func Dial(addr, tabID string, opts ClientOptions) *Client {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: url.Values{"tab": {tabID}}.Encode()}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:    u.String(),
		opts:   opts,
		subs:   make(map[int]func(Envelope)),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.run(ctx)
	return c
}

// Connected reports whether a relay connection is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// WaitConnected blocks until connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case <-ticker.C:
		}
	}
}

func (c *Client) Send(ctx context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.Wrap(apperrors.CodeBusSendFailed, "write envelope", err)
	}
	return nil
}

func (c *Client) Subscribe(fn func(Envelope)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			conn.Close()
		}
	})
	c.wg.Wait()
	return nil
}

// run owns the connection lifecycle: dial, read until error, back off, repeat.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0 // never give up
	b.Reset()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			wait := b.NextBackOff()
			log.Printf("bus: dial %s failed: %v (retry in %v)", c.url, err, wait)
			select {
			case <-c.done:
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		c.mu.Lock()
		select {
		case <-c.done:
			c.mu.Unlock()
			conn.Close()
			return
		default:
		}
		c.conn = conn
		c.mu.Unlock()

		log.Printf("bus: connected to %s", c.url)
		if c.opts.OnConnect != nil {
			c.opts.OnConnect()
		}

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("bus: read error: %v", err)
				}
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("bus: dropping malformed envelope: %v", err)
			continue
		}
		if err := env.Validate(); err != nil {
			log.Printf("bus: dropping envelope: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	c.mu.RLock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Envelope), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(env)
	}
}
