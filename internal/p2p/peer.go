package p2p

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendQueueSize bounds the frames waiting for a peer's writer. Frames
	// beyond it are dropped.
	sendQueueSize = 64

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 20
)

// Direction records who opened a connection.
type Direction string

// Connection directions.
const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID          uint64    `json:"id"`
	Address     string    `json:"address"`
	Direction   Direction `json:"direction"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Peer is one websocket connection. Frames are written by a single writer
// goroutine fed through a bounded queue.
type Peer struct {
	info PeerInfo
	conn *websocket.Conn

	send      chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func newPeer(id uint64, conn *websocket.Conn, address string, dir Direction) *Peer {
	return &Peer{
		info: PeerInfo{
			ID:          id,
			Address:     address,
			Direction:   dir,
			ConnectedAt: time.Now(),
		},
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		quit: make(chan struct{}),
	}
}

// String returns the peer id and address.
func (p *Peer) String() string {
	return fmt.Sprintf("%d (%s, %s)", p.info.ID, p.info.Address, p.info.Direction)
}

// Info returns a description of the peer.
func (p *Peer) Info() PeerInfo {
	return p.info
}

// Send queues m for delivery without waiting. It reports false when the
// peer is closed or its queue is full.
func (p *Peer) Send(m Message) bool {
	data, err := Encode(m)
	if err != nil {
		log.Errorf("Failed to encode %s for peer %s: %v", m.Type(), p, err)
		return false
	}

	select {
	case <-p.quit:
		return false
	default:
	}

	select {
	case p.send <- data:
		return true
	default:
		log.Warnf("Send queue for peer %s is full, dropping %s", p, m.Type())
		return false
	}
}

// Close shuts the connection. It is safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		if p.conn != nil {
			p.conn.Close()
		}
	})
}

// readLoop hands every inbound frame to handle until the connection fails.
func (p *Peer) readLoop(handle func(*Peer, []byte)) {
	defer p.Close()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("Read from peer %s failed: %v", p, err)
			}
			return
		}
		handle(p, data)
	}
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (p *Peer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.Close()
	}()

	for {
		select {
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debugf("Write to peer %s failed: %v", p, err)
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.quit:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
