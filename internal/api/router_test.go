package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/keys"
	"github.com/thanhnp/family-currency/internal/ledger"
	"github.com/thanhnp/family-currency/internal/metrics"
	"github.com/thanhnp/family-currency/internal/models"
	"github.com/thanhnp/family-currency/internal/p2p"
	"github.com/thanhnp/family-currency/internal/storage"
	indexsync "github.com/thanhnp/family-currency/internal/sync"
)

type fakeNetwork struct {
	mu         sync.Mutex
	blocks     []*ledger.Block
	txs        []*ledger.Transaction
	dialed     []string
	connectErr error
}

func (n *fakeNetwork) Peers() []p2p.PeerInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]p2p.PeerInfo, 0, len(n.dialed))
	for i, url := range n.dialed {
		peers = append(peers, p2p.PeerInfo{ID: uint64(i + 1), Address: url, Direction: p2p.Outbound})
	}
	return peers
}

func (n *fakeNetwork) Connect(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connectErr != nil {
		return n.connectErr
	}
	n.dialed = append(n.dialed, url)
	return nil
}

func (n *fakeNetwork) BroadcastBlock(b *ledger.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks = append(n.blocks, b)
}

func (n *fakeNetwork) BroadcastTransaction(tx *ledger.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs = append(n.txs, tx)
}

type fakeStatus struct{}

func (fakeStatus) Status() (indexsync.Status, error) {
	return indexsync.Status{Syncing: true, HistoricalDone: true, SyncedHeight: 2}, nil
}

type testServer struct {
	router  *Router
	ledger  *ledger.Ledger
	network *fakeNetwork
}

func newTestServer(t *testing.T, extra func(*Deps)) *testServer {
	t.Helper()
	l := ledger.New(ledger.Config{Difficulty: 1, MiningReward: 100}, keys.New())
	network := &fakeNetwork{}
	deps := Deps{
		Ledger:  l,
		Wallets: keys.New(),
		Network: network,
	}
	if extra != nil {
		extra(&deps)
	}
	return &testServer{router: NewRouter(deps), ledger: l, network: network}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.Engine().ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/health", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /health = %d %v", code, body)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/blockchain/height", nil)
	rec := httptest.NewRecorder()
	s.router.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMintMineAndBalance(t *testing.T) {
	s := newTestServer(t, nil)

	code, user := s.do(t, http.MethodPost, "/api/users", map[string]string{"name": "alice"})
	if code != http.StatusCreated {
		t.Fatalf("create user status = %d", code)
	}
	address, _ := user["address"].(string)
	if address == "" || user["privateKey"] == "" || user["name"] != "alice" {
		t.Fatalf("create user body = %v", user)
	}

	code, body := s.do(t, http.MethodPost, "/api/tokens/mint", map[string]interface{}{
		"toAddress": address,
		"amount":    500,
	})
	if code != http.StatusAccepted {
		t.Fatalf("mint status = %d %v", code, body)
	}
	if len(s.network.txs) != 1 {
		t.Errorf("broadcast %d transactions, want 1", len(s.network.txs))
	}

	code, body = s.do(t, http.MethodPost, "/api/mining/mine", map[string]string{"minerAddress": "miner"})
	if code != http.StatusCreated {
		t.Fatalf("mine status = %d %v", code, body)
	}
	block := body["block"].(map[string]interface{})
	if block["height"] != float64(1) || block["miner"] != "miner" {
		t.Errorf("mined block = %v", block)
	}
	if len(s.network.blocks) != 1 || s.network.blocks[0].Hash != block["hash"] {
		t.Errorf("mined block was not broadcast")
	}

	code, body = s.do(t, http.MethodGet, "/api/tokens/balance/"+address, nil)
	if code != http.StatusOK || body["balance"] != float64(500) {
		t.Errorf("balance = %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/users/"+address, nil)
	if code != http.StatusOK || body["transactionCount"] != float64(1) {
		t.Errorf("user lookup = %d %v", code, body)
	}

	// Nothing left to mine.
	code, body = s.do(t, http.MethodPost, "/api/mining/mine", map[string]string{"minerAddress": "miner"})
	if code != http.StatusOK || body["block"] != nil {
		t.Errorf("mine on empty pool = %d %v", code, body)
	}
}

func TestTransferErrors(t *testing.T) {
	s := newTestServer(t, nil)
	km := keys.New()
	owner, _ := km.Generate()
	other, _ := km.Generate()

	mint, _ := ledger.NewMint(owner.Address, 10)
	if err := s.ledger.SubmitTransaction(mint); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ledger.Mine(context.Background(), "miner"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		body map[string]interface{}
		want int
	}{
		{
			name: "valid transfer",
			path: "/api/tokens/transfer",
			body: map[string]interface{}{"fromAddress": owner.Address, "toAddress": "bob", "amount": 5, "privateKey": owner.PrivateKey},
			want: http.StatusAccepted,
		},
		{
			name: "insufficient funds",
			path: "/api/tokens/transfer",
			body: map[string]interface{}{"fromAddress": owner.Address, "toAddress": "bob", "amount": 10, "privateKey": owner.PrivateKey},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "key of another address",
			path: "/api/tokens/transfer",
			body: map[string]interface{}{"fromAddress": owner.Address, "toAddress": "bob", "amount": 1, "privateKey": other.PrivateKey},
			want: http.StatusBadRequest,
		},
		{
			name: "missing private key",
			path: "/api/tokens/transfer",
			body: map[string]interface{}{"fromAddress": owner.Address, "toAddress": "bob", "amount": 1},
			want: http.StatusBadRequest,
		},
		{
			name: "negative mint",
			path: "/api/tokens/mint",
			body: map[string]interface{}{"toAddress": "bob", "amount": -3},
			want: http.StatusBadRequest,
		},
		{
			name: "burn",
			path: "/api/tokens/burn",
			body: map[string]interface{}{"fromAddress": owner.Address, "amount": 2, "privateKey": owner.PrivateKey},
			want: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, tt.path, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%v)", code, tt.want, body)
			}
		})
	}

	if got := len(s.ledger.Pending()); got != 2 {
		t.Errorf("pending pool holds %d transactions, want 2", got)
	}
}

func TestChainRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	mint, _ := ledger.NewMint("alice", 1)
	if err := s.ledger.SubmitTransaction(mint); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ledger.Mine(context.Background(), "miner"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want int
		key  string
	}{
		{"/api/blockchain/height", http.StatusOK, "height"},
		{"/api/blockchain/latest", http.StatusOK, "block"},
		{"/api/blockchain/stats", http.StatusOK, "stats"},
		{"/api/blockchain/pending", http.StatusOK, "pendingTransactions"},
		{"/api/blockchain/valid", http.StatusOK, "isValid"},
		{"/api/blockchain/block/0", http.StatusOK, "block"},
		{"/api/blockchain/block/9", http.StatusNotFound, "error"},
		{"/api/blockchain/block/abc", http.StatusBadRequest, "error"},
		{"/api/blockchain/transaction/" + mint.ID, http.StatusOK, "transaction"},
		{"/api/blockchain/transaction/unknown", http.StatusNotFound, "error"},
		{"/api/mining/info", http.StatusOK, "info"},
	}

	for _, tt := range tests {
		code, body := s.do(t, http.MethodGet, tt.path, nil)
		if code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, code, tt.want)
			continue
		}
		if _, ok := body[tt.key]; !ok {
			t.Errorf("GET %s body has no %q: %v", tt.path, tt.key, body)
		}
	}

	_, body := s.do(t, http.MethodGet, "/api/blockchain/valid", nil)
	if body["isValid"] != true {
		t.Errorf("chain reported invalid")
	}
	_, body = s.do(t, http.MethodGet, "/api/blockchain/height", nil)
	if body["height"] != float64(1) || body["totalBlocks"] != float64(2) {
		t.Errorf("height = %v", body)
	}
}

func TestNetworkRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, http.MethodPost, "/api/network/connect", map[string]string{"peerUrl": "ws://10.0.0.2:6001"})
	if code != http.StatusOK {
		t.Errorf("connect status = %d", code)
	}

	code, body := s.do(t, http.MethodGet, "/api/network/peers", nil)
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("peers = %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodPost, "/api/network/connect", map[string]string{"peerUrl": "http://10.0.0.2"})
	if code != http.StatusBadRequest {
		t.Errorf("connect with a non-websocket URL = %d, want 400", code)
	}

	s.network.connectErr = errors.Mark(errors.New("connection refused"), p2p.ErrNetwork)
	code, _ = s.do(t, http.MethodPost, "/api/network/connect", map[string]string{"peerUrl": "ws://10.0.0.3:6001"})
	if code != http.StatusBadGateway {
		t.Errorf("failed connect = %d, want 502", code)
	}
}

func newExplorerStores(t *testing.T) *storage.Stores {
	t.Helper()
	db, err := storage.NewMemPebbleDB()
	if err != nil {
		t.Fatal(err)
	}
	stores := storage.NewStores(db)
	t.Cleanup(func() { stores.Close() })

	block := &models.Block{Hash: "h1", Height: 1, PreviousHash: "h0", Timestamp: time.Now().UTC(), TxCount: 1}
	tx := &models.Transaction{TxID: "t1", BlockHash: "h1", BlockHeight: 1, Type: "mint", To: "alice", Amount: 4}
	if err := stores.BlockStore.Save(block); err != nil {
		t.Fatal(err)
	}
	if err := stores.TxStore.Save(tx); err != nil {
		t.Fatal(err)
	}
	if err := stores.AddressStore.UpdateBalance("alice", 4, 0, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := stores.AddressStore.AddTxReference("alice", 1, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := stores.SyncStore.SetSyncedHeight(2); err != nil {
		t.Fatal(err)
	}
	return stores
}

func TestExplorerRoutes(t *testing.T) {
	stores := newExplorerStores(t)
	s := newTestServer(t, func(d *Deps) {
		d.Stores = stores
		d.Syncer = fakeStatus{}
	})

	code, body := s.do(t, http.MethodGet, "/api/explorer/overview", nil)
	if code != http.StatusOK || body["indexed_height"] != float64(2) {
		t.Errorf("overview = %d %v", code, body)
	}
	status, _ := body["sync"].(map[string]interface{})
	if status["historical_done"] != true || status["synced_height"] != float64(2) {
		t.Errorf("overview sync status = %v", body["sync"])
	}

	code, body = s.do(t, http.MethodGet, "/api/explorer/blocks?limit=500", nil)
	if code != http.StatusOK || body["limit"] != float64(100) || body["count"] != float64(1) {
		t.Errorf("blocks = %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodGet, "/api/explorer/blocks?offset=-1", nil)
	if code != http.StatusBadRequest {
		t.Errorf("negative offset = %d, want 400", code)
	}

	code, body = s.do(t, http.MethodGet, "/api/explorer/blocks/h1", nil)
	if code != http.StatusOK || len(body["transactions"].([]interface{})) != 1 {
		t.Errorf("block h1 = %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/explorer/transactions/t1", nil)
	if code != http.StatusOK || body["confirmations"] != float64(2) {
		t.Errorf("transaction t1 = %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/explorer/addresses/alice", nil)
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("address alice = %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodGet, "/api/explorer/addresses/nobody", nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown address = %d, want 404", code)
	}
}

func TestExplorerIndexErrors(t *testing.T) {
	stores := newExplorerStores(t)
	if err := stores.DB.Put(storage.CFSyncState, []byte("height"), []byte("not-a-number")); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, func(d *Deps) { d.Stores = stores })

	for _, path := range []string{
		"/api/explorer/overview",
		"/api/explorer/transactions/t1",
		"/api/explorer/addresses/alice",
	} {
		code, body := s.do(t, http.MethodGet, path, nil)
		if code != http.StatusInternalServerError {
			t.Errorf("GET %s with a corrupt sync height = %d %v, want 500", path, code, body)
		}
	}
}

func TestOptionalRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	if code, _ := s.do(t, http.MethodGet, "/api/explorer/overview", nil); code != http.StatusNotFound {
		t.Errorf("explorer without an index = %d, want 404", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/metrics", nil); code != http.StatusNotFound {
		t.Errorf("metrics without a registry = %d, want 404", code)
	}

	s = newTestServer(t, func(d *Deps) { d.Metrics = metrics.New().Handler() })
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d", rec.Code)
	}
}
