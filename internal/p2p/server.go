package p2p

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/thanhnp/family-currency/internal/ledger"
)

// Chain is the part of the ledger the protocol drives.
type Chain interface {
	Tip() *ledger.Block
	Height() int64
	Chain() []*ledger.Block
	AppendBlock(block *ledger.Block) error
	Replace(candidate []*ledger.Block) error
	OnChainReplaced(handler ledger.ReplaceHandler)
}

// Observer receives protocol events, typically for metrics.
type Observer interface {
	PeersChanged(count int)
	MessageReceived(msgType string)
}

type noopObserver struct{}

func (noopObserver) PeersChanged(int)       {}
func (noopObserver) MessageReceived(string) {}

// Config configures a Server.
type Config struct {
	// ListenAddr is the host:port to accept peers on. Empty disables listening.
	ListenAddr string

	// Observer is optional.
	Observer Observer
}

// Server accepts and dials websocket peers and gossips the chain with them.
type Server struct {
	cfg      Config
	chain    Chain
	observer Observer
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu       sync.RWMutex
	peers    map[uint64]*Peer
	nextID   uint64
	listener net.Listener
	http     *http.Server
	wg       sync.WaitGroup
}

// NewServer creates a server for chain. Accepted chain replacements are
// rebroadcast to every peer.
func NewServer(chain Chain, cfg Config) *Server {
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	s := &Server{
		cfg:      cfg,
		chain:    chain,
		observer: observer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		peers: make(map[uint64]*Peer),
	}

	chain.OnChainReplaced(func(_, newChain []*ledger.Block) {
		s.Broadcast(ResponseBlockchain{Blocks: newChain})
	})

	return s
}

// Start begins accepting peers on the configured address.
func (s *Server) Start() error {
	if s.cfg.ListenAddr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "listen on %s", s.cfg.ListenAddr), ErrNetwork)
	}

	s.mu.Lock()
	s.listener = listener
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.http
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("P2P listener error: %v", err)
		}
	}()

	log.Infof("P2P server listening on %s", listener.Addr())
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every peer connection.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, p := range peers {
		p.Close()
	}
	s.wg.Wait()
	return err
}

// ServeHTTP upgrades an inbound HTTP request to a peer connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	s.addPeer(conn, r.RemoteAddr, Inbound)
}

// Connect dials a peer at a ws:// URL. After the connection opens the local
// chain is pushed, followed by a query for the peer's tip.
func (s *Server) Connect(ctx context.Context, url string) error {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "dial %s", url), ErrNetwork)
	}

	p := s.addPeer(conn, url, Outbound)
	p.Send(QueryLatest{})
	return nil
}

// addPeer registers conn, starts its loops and pushes the local chain.
func (s *Server) addPeer(conn *websocket.Conn, address string, dir Direction) *Peer {
	s.mu.Lock()
	s.nextID++
	p := newPeer(s.nextID, conn, address, dir)
	s.peers[p.info.ID] = p
	count := len(s.peers)
	s.mu.Unlock()

	log.Infof("Peer %s connected", p)
	s.observer.PeersChanged(count)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		p.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		p.readLoop(s.handleMessage)
		s.removePeer(p)
	}()

	p.Send(ResponseBlockchain{Blocks: s.chain.Chain()})
	return p
}

func (s *Server) removePeer(p *Peer) {
	s.mu.Lock()
	delete(s.peers, p.info.ID)
	count := len(s.peers)
	s.mu.Unlock()

	log.Infof("Peer %s disconnected", p)
	s.observer.PeersChanged(count)
}

// Peers lists connected peers ordered by id.
func (s *Server) Peers() []PeerInfo {
	s.mu.RLock()
	out := make([]PeerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.Info())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast queues m for every connected peer. Delivery is not confirmed.
func (s *Server) Broadcast(m Message) {
	s.mu.RLock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	for _, p := range peers {
		p.Send(m)
	}
}

// BroadcastBlock announces a block to every peer.
func (s *Server) BroadcastBlock(block *ledger.Block) {
	s.Broadcast(NewBlock{Block: block})
}

// BroadcastTransaction announces a transaction to every peer.
func (s *Server) BroadcastTransaction(tx *ledger.Transaction) {
	s.Broadcast(NewTransaction{Transaction: tx})
}
