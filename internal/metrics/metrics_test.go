package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/thanhnp/family-currency/internal/keys"
	"github.com/thanhnp/family-currency/internal/ledger"
)

func TestLedgerEvents(t *testing.T) {
	l := ledger.New(ledger.Config{Difficulty: 1}, keys.New())
	m := New()
	m.Attach(l)

	mint, _ := ledger.NewMint("alice", 5)
	if err := l.SubmitTransaction(mint); err != nil {
		t.Fatal(err)
	}
	block, err := l.Mine(context.Background(), "miner")
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.blocks.WithLabelValues("mined")); got != 1 {
		t.Errorf("mined blocks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.hashes); got != float64(block.Nonce+1) {
		t.Errorf("hashes = %v, want %v", got, block.Nonce+1)
	}
	if got := testutil.ToFloat64(m.height); got != 1 {
		t.Errorf("height = %v, want 1", got)
	}

	next := ledger.NewBlock(block.Timestamp+1, nil, block.Hash)
	chain := append(l.Chain(), next)
	extra := ledger.NewBlock(next.Timestamp+1, nil, next.Hash)
	if err := l.Replace(append(chain, extra)); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.replacements); got != 1 {
		t.Errorf("replacements = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.height); got != 3 {
		t.Errorf("height = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.PeersChanged(2)
	m.MessageReceived("QUERY_ALL")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"famcoin_p2p_peers 2",
		`famcoin_p2p_messages_received_total{type="QUERY_ALL"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output is missing %q", want)
		}
	}
}
