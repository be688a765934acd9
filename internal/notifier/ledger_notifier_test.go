package notifier

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/thanhnp/family-currency/internal/keys"
	"github.com/thanhnp/family-currency/internal/ledger"
	"github.com/thanhnp/family-currency/internal/models"
)

type event struct {
	kind   string
	hash   string
	height int64
}

func (e event) String() string {
	return fmt.Sprintf("%s %d %s", e.kind, e.height, e.hash)
}

func startNotifier(t *testing.T, l *ledger.Ledger) (*LedgerNotifier, chan event) {
	t.Helper()
	events := make(chan event, 16)
	n := NewLedgerNotifier(l)
	n.OnBlockConnected(func(b *models.Block, txs []*models.Transaction) {
		events <- event{"connect", b.Hash, b.Height}
	})
	n.OnBlockDisconnected(func(hash string, height int64) {
		events <- event{"disconnect", hash, height}
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { n.Stop() })
	return n, events
}

func next(t *testing.T, events chan event) event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a notification")
		return event{}
	}
}

func TestBlockConnected(t *testing.T) {
	l := ledger.New(ledger.Config{Difficulty: 1}, keys.New())
	_, events := startNotifier(t, l)

	mint, _ := ledger.NewMint("alice", 3)
	if err := l.SubmitTransaction(mint); err != nil {
		t.Fatal(err)
	}
	block, err := l.Mine(context.Background(), "miner")
	if err != nil {
		t.Fatal(err)
	}

	want := event{"connect", block.Hash, 1}
	if got := next(t, events); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChainReplaced(t *testing.T) {
	l := ledger.New(ledger.Config{Difficulty: 1}, keys.New())
	genesis := l.Tip()

	local := ledger.NewBlock(genesis.Timestamp+1000, nil, genesis.Hash)
	if err := l.AppendBlock(local); err != nil {
		t.Fatal(err)
	}

	_, events := startNotifier(t, l)

	b1 := ledger.NewBlock(genesis.Timestamp+2000, nil, genesis.Hash)
	b2 := ledger.NewBlock(genesis.Timestamp+3000, nil, b1.Hash)
	if err := l.Replace([]*ledger.Block{genesis, b1, b2}); err != nil {
		t.Fatal(err)
	}

	want := []event{
		{"disconnect", local.Hash, 1},
		{"connect", b1.Hash, 1},
		{"connect", b2.Hash, 2},
	}
	for _, w := range want {
		if got := next(t, events); got != w {
			t.Errorf("got %v, want %v", got, w)
		}
	}
}

func TestStoppedNotifierDropsEvents(t *testing.T) {
	l := ledger.New(ledger.Config{Difficulty: 1}, keys.New())
	n, events := startNotifier(t, l)
	if err := n.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := l.AppendBlock(ledger.NewBlock(l.Tip().Timestamp+1, nil, l.Tip().Hash)); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		t.Errorf("stopped notifier delivered %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGetBlockByHeight(t *testing.T) {
	l := ledger.New(ledger.Config{}, keys.New())
	n := NewLedgerNotifier(l)

	block, txs, err := n.GetBlockByHeight(0)
	if err != nil {
		t.Fatal(err)
	}
	if block.Hash != l.Tip().Hash || block.Height != 0 || block.TxCount != 1 {
		t.Errorf("genesis record = %+v", block)
	}
	if len(txs) != 1 || txs[0].To != ledger.GenesisAddress || txs[0].Amount != ledger.GenesisSupply {
		t.Errorf("genesis transactions = %+v", txs)
	}

	if _, _, err := n.GetBlockByHeight(1); err == nil {
		t.Error("GetBlockByHeight past the tip succeeded")
	}
	if h, _ := n.GetCurrentHeight(); h != 0 {
		t.Errorf("GetCurrentHeight = %d, want 0", h)
	}
}

func TestParseLedgerBlockMarksReward(t *testing.T) {
	mint, _ := ledger.NewMint("alice", 1)
	reward, _ := ledger.NewMint("miner", 100)
	b := ledger.NewBlock(1735689601000, []*ledger.Transaction{mint, reward}, "prev")
	b.Miner = "miner"

	block, txs := ParseLedgerBlock(b, 7)
	if block.Height != 7 || block.Miner != "miner" || block.TxCount != 2 {
		t.Errorf("block record = %+v", block)
	}
	if txs[0].IsReward || !txs[1].IsReward {
		t.Errorf("reward flags = %v, %v; want false, true", txs[0].IsReward, txs[1].IsReward)
	}
	if !block.Timestamp.Equal(time.UnixMilli(1735689601000)) {
		t.Errorf("timestamp = %v", block.Timestamp)
	}
}
