package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/focusflow/host/internal/bus"
	apperrors "github.com/focusflow/host/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// tab is one connected tab process.
type tab struct {
	id     string
	conn   *websocket.Conn
	server *Server

	// send carries raw envelopes to writePump.
	send chan []byte

	// done is closed to signal the tab should shut down. Senders check it
	// instead of the send channel being closed.
	done     chan struct{}
	sendOnce sync.Once

	limiter *rate.Limiter
}

func newTab(s *Server, conn *websocket.Conn, id string) *tab {
	return &tab{
		id:      id,
		conn:    conn,
		server:  s,
		send:    make(chan []byte, tabBufferSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst),
	}
}

// closeSend signals shutdown exactly once.
func (t *tab) closeSend() {
	t.sendOnce.Do(func() {
		close(t.done)
	})
}

// writePump drains send to the connection and pings periodically.
func (t *tab) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case raw := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				log.Printf("relay: write to tab %s: %v", t.id, err)
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump validates inbound envelopes and hands them to the server.
func (t *tab) readPump() {
	defer func() {
		t.server.removeTab(t)
		t.closeSend()
		log.Printf("relay: tab %s disconnected (%d remaining)", t.id, t.server.TabCount())
	}()

	t.conn.SetReadLimit(maxMessageSize)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("relay: read from tab %s: %v", t.id, err)
			}
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		t.handle(raw)
	}
}

func (t *tab) handle(raw []byte) {
	if !t.limiter.Allow() {
		t.server.rateLimited.Add(1)
		log.Printf("relay: %v", apperrors.New(apperrors.CodeRelayRateLimited, "tab "+t.id+" over budget, dropping envelope"))
		return
	}

	var env bus.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("relay: tab %s sent malformed envelope: %v", t.id, err)
		return
	}
	if err := env.Validate(); err != nil {
		log.Printf("relay: tab %s: %v", t.id, err)
		return
	}

	if t.server.dedupe.Seen(env.ID()) {
		t.server.duplicates.Add(1)
		return
	}
	t.server.forward(t, raw)
}
