package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/ledger"
	"github.com/thanhnp/family-currency/internal/models"
)

// ErrBlockNotFound is returned for a height past the chain tip.
var ErrBlockNotFound = errors.New("block not found")

// Source is the ledger surface the notifier follows.
type Source interface {
	OnBlockConnected(handler ledger.BlockHandler)
	OnChainReplaced(handler ledger.ReplaceHandler)
	BlockByHeight(height int64) (*ledger.Block, bool)
	Height() int64
}

type blockConnected struct {
	block  *ledger.Block
	height int64
}

type chainReplaced struct {
	oldChain []*ledger.Block
	newChain []*ledger.Block
}

// LedgerNotifier turns ledger events into block connected and disconnected
// notifications, delivered in order from a single goroutine.
type LedgerNotifier struct {
	source            Source
	anyQ              chan interface{}
	blockHandler      BlockHandler
	disconnectHandler DisconnectHandler
	mu                sync.RWMutex
	running           bool
	ctx               context.Context
	cancel            context.CancelFunc
	subscribed        bool
}

var _ BlockNotifier = (*LedgerNotifier)(nil)

// NewLedgerNotifier creates a notifier following source
func NewLedgerNotifier(source Source) *LedgerNotifier {
	return &LedgerNotifier{
		source: source,
		// The ledger blocks on a full queue, so keep it roomy.
		anyQ: make(chan interface{}, 1024),
	}
}

// Start subscribes to the ledger and starts delivering notifications
func (n *LedgerNotifier) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.ctx = ctx
	n.cancel = cancel
	n.running = true
	subscribe := !n.subscribed
	n.subscribed = true
	n.mu.Unlock()

	if subscribe {
		n.source.OnBlockConnected(n.onBlockConnected)
		n.source.OnChainReplaced(n.onChainReplaced)
	}

	go n.superQueue(ctx)
	return nil
}

// Stop stops the notifier
func (n *LedgerNotifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	n.cancel()
	n.running = false
	log.Infof("Block notifier stopped")
	return nil
}

// enqueue hands msg to the queue unless the notifier is stopped.
func (n *LedgerNotifier) enqueue(msg interface{}) {
	n.mu.RLock()
	ctx := n.ctx
	running := n.running
	n.mu.RUnlock()

	if !running {
		return
	}
	select {
	case n.anyQ <- msg:
	case <-ctx.Done():
	}
}

// superQueue processes notifications from the queue
func (n *LedgerNotifier) superQueue(ctx context.Context) {
out:
	for {
		select {
		case rawMsg := <-n.anyQ:
			switch msg := rawMsg.(type) {
			case *blockConnected:
				log.Debugf("SuperQueue: Processing new block %s. Height: %d", msg.block.Hash, msg.height)
				n.processBlock(msg.block, msg.height)
			case *chainReplaced:
				n.processReplace(msg.oldChain, msg.newChain)
			default:
				log.Warnf("Unknown message type in superQueue: %T", rawMsg)
			}
		case <-ctx.Done():
			break out
		}
	}
}

func (n *LedgerNotifier) onBlockConnected(block *ledger.Block, height int64, source ledger.BlockSource) {
	log.Tracef("OnBlockConnected: %d / %s (%s)", height, block.Hash, source)
	n.enqueue(&blockConnected{block: block, height: height})
}

func (n *LedgerNotifier) onChainReplaced(oldChain, newChain []*ledger.Block) {
	log.Tracef("OnChainReplaced: %d -> %d blocks", len(oldChain), len(newChain))
	n.enqueue(&chainReplaced{oldChain: oldChain, newChain: newChain})
}

// processBlock delivers a connected block
func (n *LedgerNotifier) processBlock(b *ledger.Block, height int64) {
	n.mu.RLock()
	handler := n.blockHandler
	n.mu.RUnlock()

	if handler == nil {
		return
	}

	block, txs := ParseLedgerBlock(b, height)
	handler(block, txs)
}

// processReplace disconnects the old branch from the top down to the fork
// point, then connects the new branch in order.
func (n *LedgerNotifier) processReplace(oldChain, newChain []*ledger.Block) {
	fork := forkPoint(oldChain, newChain)
	log.Infof("Chain replaced at fork height %d: disconnecting %d blocks, connecting %d",
		fork, len(oldChain)-fork, len(newChain)-fork)

	n.mu.RLock()
	disconnect := n.disconnectHandler
	n.mu.RUnlock()

	if disconnect != nil {
		for h := len(oldChain) - 1; h >= fork; h-- {
			disconnect(oldChain[h].Hash, int64(h))
		}
	}
	for h := fork; h < len(newChain); h++ {
		n.processBlock(newChain[h], int64(h))
	}
}

// forkPoint returns the first height at which the chains differ.
func forkPoint(a, b []*ledger.Block) int {
	i := 0
	for i < len(a) && i < len(b) && a[i].Hash == b[i].Hash {
		i++
	}
	return i
}

// OnBlockConnected registers a handler for new blocks
func (n *LedgerNotifier) OnBlockConnected(handler BlockHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blockHandler = handler
}

// OnBlockDisconnected registers a handler for disconnected blocks
func (n *LedgerNotifier) OnBlockDisconnected(handler DisconnectHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnectHandler = handler
}

// GetBlockByHeight retrieves a block by height
func (n *LedgerNotifier) GetBlockByHeight(height int64) (*models.Block, []*models.Transaction, error) {
	b, ok := n.source.BlockByHeight(height)
	if !ok {
		return nil, nil, errors.Wrapf(ErrBlockNotFound, "height %d", height)
	}
	block, txs := ParseLedgerBlock(b, height)
	return block, txs, nil
}

// GetCurrentHeight returns the current chain height
func (n *LedgerNotifier) GetCurrentHeight() (int64, error) {
	return n.source.Height(), nil
}

// ParseLedgerBlock converts a ledger block at height into index records
func ParseLedgerBlock(b *ledger.Block, height int64) (*models.Block, []*models.Transaction) {
	timestamp := time.UnixMilli(b.Timestamp).UTC()
	block := &models.Block{
		Hash:         b.Hash,
		Height:       height,
		PreviousHash: b.PreviousHash,
		Timestamp:    timestamp,
		Nonce:        b.Nonce,
		Miner:        b.Miner,
		TxCount:      len(b.Transactions),
		Size:         b.Size(),
	}

	txs := make([]*models.Transaction, 0, len(b.Transactions))
	for i, tx := range b.Transactions {
		// The reward mint is appended last by the miner.
		isReward := i == len(b.Transactions)-1 && tx.Kind == ledger.KindMint &&
			b.Miner != "" && tx.To == b.Miner

		txs = append(txs, &models.Transaction{
			TxID:        tx.ID,
			BlockHash:   b.Hash,
			BlockHeight: height,
			Type:        string(tx.Kind),
			From:        tx.From,
			To:          tx.To,
			Amount:      tx.Amount,
			Fee:         tx.Fee(),
			IsReward:    isReward,
			Timestamp:   time.UnixMilli(tx.Timestamp).UTC(),
			Signature:   tx.Signature,
		})
	}

	return block, txs
}
