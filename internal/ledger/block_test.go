package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kr/pretty"

	"github.com/thanhnp/family-currency/internal/keys"
)

func TestGenesisBlockIsFixed(t *testing.T) {
	a, b := GenesisBlock(), GenesisBlock()
	if diff := pretty.Diff(a, b); len(diff) > 0 {
		t.Fatalf("genesis differs between calls: %v", diff)
	}

	if a.Timestamp != GenesisTimestamp || a.PreviousHash != "0" || a.Nonce != 0 || a.Miner != "" {
		t.Errorf("unexpected genesis header: %# v", pretty.Formatter(a))
	}
	if len(a.Transactions) != 1 {
		t.Fatalf("genesis has %d transactions, want 1", len(a.Transactions))
	}
	mint := a.Transactions[0]
	if mint.Kind != KindMint || mint.To != GenesisAddress || mint.Amount != GenesisSupply || mint.From != "" {
		t.Errorf("unexpected genesis mint: %# v", pretty.Formatter(mint))
	}
	if a.Hash != a.CalculateHash() {
		t.Errorf("genesis hash %s does not match content", a.Hash)
	}
}

func TestMineMeetsDifficulty(t *testing.T) {
	for _, difficulty := range []int{1, 2, 3} {
		mint, _ := NewMint("alice", 1)
		b := NewBlock(nowMillis(), []*Transaction{mint}, GenesisBlock().Hash)

		if err := b.Mine(context.Background(), difficulty, "miner"); err != nil {
			t.Fatalf("difficulty %d: %v", difficulty, err)
		}
		if !strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty)) {
			t.Errorf("difficulty %d: hash %s lacks leading zeros", difficulty, b.Hash)
		}
		if b.Hash != b.CalculateHash() {
			t.Errorf("difficulty %d: stored hash does not match content", difficulty)
		}
		if b.Miner != "miner" {
			t.Errorf("miner = %q, want miner", b.Miner)
		}
	}
}

func TestMineCancelledLeavesBlockUntouched(t *testing.T) {
	mint, _ := NewMint("alice", 1)
	b := NewBlock(nowMillis(), []*Transaction{mint}, GenesisBlock().Hash)
	before := *b

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Mine(ctx, 64, "miner"); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if diff := pretty.Diff(before, *b); len(diff) > 0 {
		t.Errorf("block changed after cancelled search: %v", diff)
	}

	// The search can be restarted on the same block.
	if err := b.Mine(context.Background(), 1, "miner"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !HasProof(b.Hash, 1) {
		t.Errorf("hash %s lacks proof after restart", b.Hash)
	}
}

func TestHasValidTransactions(t *testing.T) {
	km := keys.New()
	alice, _ := km.Generate()

	mint, _ := NewMint("alice", 1)
	signed, _ := NewTransfer(alice.Address, "bob", 1)
	if err := signed.Sign(km, alice.PrivateKey); err != nil {
		t.Fatal(err)
	}
	unsigned, _ := NewTransfer(alice.Address, "bob", 1)

	good := NewBlock(nowMillis(), []*Transaction{mint, signed}, "prev")
	if !good.HasValidTransactions(km) {
		t.Error("block with mint and signed transfer should be valid")
	}
	bad := NewBlock(nowMillis(), []*Transaction{mint, unsigned}, "prev")
	if bad.HasValidTransactions(km) {
		t.Error("block with unsigned transfer should be invalid")
	}
}

func TestBlockWireForm(t *testing.T) {
	g := GenesisBlock()
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	if g.Size() != len(data) {
		t.Errorf("Size = %d, want %d", g.Size(), len(data))
	}
	for _, key := range []string{`"timestamp"`, `"transactions"`, `"previousHash"`, `"hash"`, `"nonce"`, `"miner"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("wire form is missing %s", key)
		}
	}

	var decoded Block
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.CalculateHash() != g.Hash {
		t.Error("decoded block hashes differently")
	}
}
