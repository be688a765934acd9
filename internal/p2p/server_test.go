package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/ledger"
)

func startNode(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	l := newTestLedger()
	s := NewServer(l, Config{ListenAddr: "127.0.0.1:0"})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, l
}

func mineOne(t *testing.T, l *ledger.Ledger, owner string) *ledger.Block {
	t.Helper()
	// Keep block timestamps strictly increasing across nodes.
	time.Sleep(5 * time.Millisecond)
	mint, _ := ledger.NewMint(owner, 1)
	if err := l.SubmitTransaction(mint); err != nil {
		t.Fatal(err)
	}
	b, err := l.Mine(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func connect(t *testing.T, from, to *Server) {
	t.Helper()
	url := "ws://" + to.Addr().String()
	if err := from.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestSyncOnConnect(t *testing.T) {
	a, la := startNode(t)
	b, lb := startNode(t)
	mined := mineOne(t, la, "alice")

	connect(t, b, a)

	waitFor(t, "b to adopt a's block", func() bool {
		return lb.Tip().Hash == mined.Hash
	})
	waitFor(t, "both peer lists", func() bool {
		return len(a.Peers()) == 1 && len(b.Peers()) == 1
	})
	if got := b.Peers()[0].Direction; got != Outbound {
		t.Errorf("b sees direction %s, want outbound", got)
	}
	if got := a.Peers()[0].Direction; got != Inbound {
		t.Errorf("a sees direction %s, want inbound", got)
	}
}

func TestBlockPropagation(t *testing.T) {
	a, la := startNode(t)
	b, lb := startNode(t)
	connect(t, b, a)
	waitFor(t, "connection", func() bool { return len(a.Peers()) == 1 })

	for i := 0; i < 2; i++ {
		block := mineOne(t, la, "alice")
		a.BroadcastBlock(block)
		waitFor(t, "b to receive the new block", func() bool {
			return lb.Tip().Hash == block.Hash
		})
	}
	if lb.Height() != 2 {
		t.Errorf("b height = %d, want 2", lb.Height())
	}
}

func TestForkResolution(t *testing.T) {
	a, la := startNode(t)
	b, lb := startNode(t)

	mineOne(t, lb, "bob")
	mineOne(t, la, "alice")

	connect(t, b, a)
	waitFor(t, "connection", func() bool { return len(a.Peers()) == 1 && len(b.Peers()) == 1 })

	// Equal length chains: both nodes keep their own.
	time.Sleep(200 * time.Millisecond)
	if la.Height() != 1 || lb.Height() != 1 || la.Tip().Hash == lb.Tip().Hash {
		t.Fatal("equal length fork should persist on both nodes")
	}

	// A strictly longer chain wins once announced.
	block := mineOne(t, la, "alice")
	a.BroadcastBlock(block)
	waitFor(t, "b to switch to a's chain", func() bool {
		return lb.Tip().Hash == block.Hash
	})
	if lb.Height() != 2 {
		t.Errorf("b height = %d, want 2", lb.Height())
	}
	if lb.BalanceOf("bob") != 0 {
		t.Error("b still counts its orphaned block")
	}
}

func TestConnectFailure(t *testing.T) {
	s := NewServer(newTestLedger(), Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Connect(ctx, "ws://127.0.0.1:1")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
	if len(s.Peers()) != 0 {
		t.Error("failed dial must not register a peer")
	}
}

func TestPeerRemovedOnDisconnect(t *testing.T) {
	a, _ := startNode(t)
	b := NewServer(newTestLedger(), Config{})
	connect(t, b, a)
	waitFor(t, "connection", func() bool { return len(a.Peers()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "a to drop the peer", func() bool { return len(a.Peers()) == 0 })
}
