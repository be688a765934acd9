package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Defaults for Config.
const (
	DefaultDifficulty   = 2
	DefaultMiningReward = 100
)

// Config holds the consensus constants of a ledger.
type Config struct {
	Difficulty   int
	MiningReward float64
}

// BlockSource tells subscribers how a block joined the chain.
type BlockSource int

// Block sources.
const (
	SourceMined BlockSource = iota
	SourcePeer
)

// String returns the source name.
func (s BlockSource) String() string {
	switch s {
	case SourceMined:
		return "mined"
	case SourcePeer:
		return "peer"
	default:
		return "unknown"
	}
}

// BlockHandler is called after a block is appended to the chain.
type BlockHandler func(block *Block, height int64, source BlockSource)

// ReplaceHandler is called after the chain is replaced by a longer one.
type ReplaceHandler func(oldChain, newChain []*Block)

// Balances reports balances derived from confirmed blocks.
type Balances interface {
	BalanceOf(address string) float64
}

// Ledger holds the chain and the pending pool. All methods are safe for
// concurrent use.
type Ledger struct {
	cfg  Config
	keys Verifier

	mu           sync.RWMutex
	chain        []*Block
	pending      []*Transaction
	cancelMining context.CancelFunc

	// mineMu serializes Mine calls.
	mineMu sync.Mutex

	handlersMu      sync.RWMutex
	blockHandlers   []BlockHandler
	replaceHandlers []ReplaceHandler
}

var _ Balances = (*Ledger)(nil)

// New creates a ledger holding only the genesis block. Zero config values
// fall back to the defaults.
func New(cfg Config, keys Verifier) *Ledger {
	if cfg.Difficulty <= 0 {
		cfg.Difficulty = DefaultDifficulty
	}
	if cfg.MiningReward <= 0 {
		cfg.MiningReward = DefaultMiningReward
	}

	return &Ledger{
		cfg:   cfg,
		keys:  keys,
		chain: []*Block{GenesisBlock()},
	}
}

// OnBlockConnected registers a handler for appended blocks.
func (l *Ledger) OnBlockConnected(handler BlockHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.blockHandlers = append(l.blockHandlers, handler)
}

// OnChainReplaced registers a handler for accepted chain replacements.
func (l *Ledger) OnChainReplaced(handler ReplaceHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.replaceHandlers = append(l.replaceHandlers, handler)
}

func (l *Ledger) notifyBlock(block *Block, height int64, source BlockSource) {
	l.handlersMu.RLock()
	handlers := l.blockHandlers
	l.handlersMu.RUnlock()

	for _, h := range handlers {
		h(block, height, source)
	}
}

func (l *Ledger) notifyReplace(oldChain, newChain []*Block) {
	l.handlersMu.RLock()
	handlers := l.replaceHandlers
	l.handlersMu.RUnlock()

	for _, h := range handlers {
		h(oldChain, newChain)
	}
}

// SubmitTransaction validates tx and appends it to the pending pool. Only
// confirmed balances are checked, so two pending spends of the same funds
// are both admitted.
func (l *Ledger) SubmitTransaction(tx *Transaction) error {
	if tx == nil {
		return errors.Wrap(ErrValidation, "nil transaction")
	}
	if err := tx.validateShape(); err != nil {
		return err
	}

	ok, err := tx.IsValid(l.keys)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrValidation, "transaction %s has an invalid signature", tx.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.Kind != KindMint && tx.From != "" {
		balance := balanceIn(l.chain, tx.From)
		if need := tx.Amount + tx.Fee(); balance < need {
			return errors.Wrapf(ErrInsufficientFunds, "%s holds %v, needs %v", tx.From, balance, need)
		}
	}

	l.pending = append(l.pending, tx)
	log.Debugf("Transaction %s added to pending pool (%d pending)", tx.ID, len(l.pending))
	return nil
}

// Mine seals every pending transaction plus a reward mint for minerAddress
// into a new block. It returns nil, nil when the pool is empty.
//
// The proof-of-work search runs without holding the ledger lock. A chain
// replacement or peer block that moves the tip cancels the search and Mine
// returns ErrStaleTip with the pool unchanged. Transactions submitted during
// the search stay pending for the next block.
func (l *Ledger) Mine(ctx context.Context, minerAddress string) (*Block, error) {
	if minerAddress == "" {
		return nil, errors.Wrap(ErrValidation, "miner address is required")
	}

	l.mineMu.Lock()
	defer l.mineMu.Unlock()

	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		log.Debugf("No pending transactions to mine")
		return nil, nil
	}
	txs := make([]*Transaction, len(l.pending), len(l.pending)+1)
	copy(txs, l.pending)
	parent := l.chain[len(l.chain)-1]
	searchCtx, cancel := context.WithCancel(ctx)
	l.cancelMining = cancel
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.cancelMining = nil
		l.mu.Unlock()
		cancel()
	}()

	reward := newTransactionAt(KindMint, "", minerAddress, l.cfg.MiningReward, nowMillis(), rand.Uint64())
	block := NewBlock(nowMillis(), append(txs, reward), parent.Hash)

	start := time.Now()
	if err := block.Mine(searchCtx, l.cfg.Difficulty, minerAddress); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, "mining aborted")
		}
		return nil, errors.Wrapf(ErrStaleTip, "parent %s", parent.Hash)
	}

	l.mu.Lock()
	if tip := l.chain[len(l.chain)-1]; tip.Hash != parent.Hash {
		l.mu.Unlock()
		return nil, errors.Wrapf(ErrStaleTip, "parent %s, tip %s", parent.Hash, tip.Hash)
	}
	l.chain = append(l.chain, block)
	l.pending = append([]*Transaction(nil), l.pending[len(txs):]...)
	height := int64(len(l.chain) - 1)
	l.mu.Unlock()

	log.Infof("Mined block %d %s (nonce %d, %d txs) in %v", height, block.Hash, block.Nonce,
		len(block.Transactions), time.Since(start))

	l.notifyBlock(block, height, SourceMined)
	return block, nil
}

// AppendBlock appends a block received from a peer. The block must link to
// the current tip; its hash and proof-of-work are not re-checked.
func (l *Ledger) AppendBlock(block *Block) error {
	if block == nil {
		return errors.Wrap(ErrValidation, "nil block")
	}
	if err := checkTransactions(block); err != nil {
		return err
	}

	l.mu.Lock()
	tip := l.chain[len(l.chain)-1]
	if block.PreviousHash != tip.Hash {
		l.mu.Unlock()
		return errors.Wrapf(ErrInvalidChain, "block %s does not extend tip %s", block.Hash, tip.Hash)
	}
	l.chain = append(l.chain, block)
	height := int64(len(l.chain) - 1)
	l.stopMiningLocked()
	l.mu.Unlock()

	log.Infof("Appended block %d %s from peer", height, block.Hash)
	l.notifyBlock(block, height, SourcePeer)
	return nil
}

// Replace swaps the local chain for candidate when candidate is strictly
// longer and every block links to its predecessor. Hashes, proof-of-work,
// signatures and the genesis block of candidate are not checked.
func (l *Ledger) Replace(candidate []*Block) error {
	if err := checkLinks(candidate); err != nil {
		return err
	}

	l.mu.Lock()
	if len(candidate) <= len(l.chain) {
		local := len(l.chain)
		l.mu.Unlock()
		return errors.Wrapf(ErrShorterChain, "candidate has %d blocks, local chain has %d", len(candidate), local)
	}
	oldChain := l.chain
	l.chain = append([]*Block(nil), candidate...)
	newChain := append([]*Block(nil), l.chain...)
	l.stopMiningLocked()
	l.mu.Unlock()

	log.Infof("Replaced chain: %d blocks -> %d blocks", len(oldChain), len(newChain))
	l.notifyReplace(oldChain, newChain)
	return nil
}

// stopMiningLocked cancels an in-flight proof-of-work search. l.mu must be held.
func (l *Ledger) stopMiningLocked() {
	if l.cancelMining != nil {
		l.cancelMining()
	}
}

func checkLinks(chain []*Block) error {
	if len(chain) == 0 {
		return errors.Wrap(ErrInvalidChain, "empty chain")
	}
	for i, b := range chain {
		if b == nil {
			return errors.Wrapf(ErrInvalidChain, "block %d is missing", i)
		}
		if err := checkTransactions(b); err != nil {
			return errors.Wrapf(err, "block %d", i)
		}
		if i > 0 && b.PreviousHash != chain[i-1].Hash {
			return errors.Wrapf(ErrInvalidChain, "block %d does not link to block %d", i, i-1)
		}
	}
	return nil
}

func checkTransactions(b *Block) error {
	for i, tx := range b.Transactions {
		if tx == nil {
			return errors.Wrapf(ErrInvalidChain, "block %s transaction %d is missing", b.Hash, i)
		}
	}
	return nil
}

// BalanceOf returns what address received minus what it sent plus fees,
// summed over every confirmed block. The empty address holds nothing.
func (l *Ledger) BalanceOf(address string) float64 {
	if address == "" {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return balanceIn(l.chain, address)
}

func balanceIn(chain []*Block, address string) float64 {
	var balance float64
	for _, b := range chain {
		for _, tx := range b.Transactions {
			if tx.From == address {
				balance -= tx.Amount + tx.Fee()
			}
			if tx.To == address {
				balance += tx.Amount
			}
		}
	}
	return balance
}

// IsValid re-checks the whole chain: the genesis block, every signature,
// every stored hash and every link.
func (l *Ledger) IsValid() bool {
	l.mu.RLock()
	chain := l.chain
	l.mu.RUnlock()

	return l.validChain(chain)
}

func (l *Ledger) validChain(chain []*Block) bool {
	want, err := json.Marshal(GenesisBlock())
	if err != nil {
		return false
	}
	got, err := json.Marshal(chain[0])
	if err != nil || !bytes.Equal(want, got) {
		log.Warnf("Genesis block does not match")
		return false
	}

	for i := 1; i < len(chain); i++ {
		b, prev := chain[i], chain[i-1]
		if !b.HasValidTransactions(l.keys) {
			log.Warnf("Block %d has invalid transactions", i)
			return false
		}
		if b.Hash != b.CalculateHash() {
			log.Warnf("Block %d hash does not match its content", i)
			return false
		}
		if b.PreviousHash != prev.Hash {
			log.Warnf("Block %d does not link to block %d", i, i-1)
			return false
		}
	}
	return true
}
