package sync

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/models"
	"github.com/thanhnp/family-currency/internal/notifier"
	"github.com/thanhnp/family-currency/internal/storage"
)

// pendingEvent holds a notification received during historical sync.
// A nil block marks a disconnect.
type pendingEvent struct {
	block  *models.Block
	txs    []*models.Transaction
	hash   string
	height int64
}

// SyncCheckpointInterval is the number of blocks between flushes during historical sync
const SyncCheckpointInterval = 300

// retryDelay is how long a failed historical block waits before a retry.
var retryDelay = 5 * time.Second

// Syncer keeps the explorer index in step with the ledger
type Syncer struct {
	notifier     notifier.BlockNotifier
	db           *storage.PebbleDB // direct db reference for sync control
	blockStore   *storage.BlockStore
	txStore      *storage.TxStore
	addressStore *storage.AddressStore
	syncStore    *storage.SyncStore

	mu             sync.RWMutex
	syncing        bool
	historicalDone bool            // true when historical sync is complete
	pendingEvents  []*pendingEvent // notifications received during historical sync
	cancel         context.CancelFunc

	// writeMu serializes index writes.
	writeMu sync.Mutex
}

// NewSyncer creates a new Syncer
func NewSyncer(n notifier.BlockNotifier, stores *storage.Stores) *Syncer {
	return &Syncer{
		notifier:     n,
		db:           stores.DB,
		blockStore:   stores.BlockStore,
		txStore:      stores.TxStore,
		addressStore: stores.AddressStore,
		syncStore:    stores.SyncStore,
	}
}

// Start begins the synchronization process
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil
	}
	s.syncing = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	// Register block handlers
	s.notifier.OnBlockConnected(s.handleBlockConnected)
	s.notifier.OnBlockDisconnected(s.handleBlockDisconnected)

	// Start the notifier for real-time updates
	if err := s.notifier.Start(); err != nil {
		return errors.Wrap(err, "failed to start notifier")
	}

	// Run historical sync in background
	go s.syncHistorical(ctx)

	return nil
}

// Stop stops the synchronization
func (s *Syncer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.syncing {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.syncing = false
	return s.notifier.Stop()
}

// syncHistorical indexes every block between the indexed height and the
// chain height observed at start, then drains the notifications queued in
// the meantime.
func (s *Syncer) syncHistorical(ctx context.Context) {
	log.Infof("Starting historical sync")

	lastSynced, err := s.syncStore.GetSyncedHeight()
	if err != nil {
		log.Errorf("Failed to get last synced height: %v", err)
		return
	}
	startHeight := lastSynced + 1

	currentHeight, err := s.notifier.GetCurrentHeight()
	if err != nil {
		log.Errorf("Failed to get current height: %v", err)
		return
	}

	if startHeight <= currentHeight {
		log.Infof("Syncing from height %d to %d", startHeight, currentHeight)

		// Enable historical sync mode for faster writes (NoSync)
		s.db.SetHistoricalSyncMode(true)

		for height := startHeight; height <= currentHeight; height++ {
			select {
			case <-ctx.Done():
				log.Infof("Sync cancelled at height %d, flushing to disk...", height)
				s.db.Sync()
				s.db.SetHistoricalSyncMode(false)
				return
			default:
			}

			if err := s.syncBlock(height); err != nil {
				log.Errorf("Failed to sync block %d: %v", height, err)
				select {
				case <-ctx.Done():
				case <-time.After(retryDelay):
				}
				height-- // Retry the same block
				continue
			}

			if height%SyncCheckpointInterval == 0 {
				if err := s.db.Sync(); err != nil {
					log.Warnf("Checkpoint sync failed at height %d: %v", height, err)
				}
			}
		}

		if err := s.db.Sync(); err != nil {
			log.Warnf("Final sync failed: %v", err)
		}
		s.db.SetHistoricalSyncMode(false)
	} else {
		log.Infof("Already synced to height %d", lastSynced)
	}

	// Drain queued notifications until none are left, then switch to
	// direct processing.
	for {
		s.mu.Lock()
		queued := s.pendingEvents
		s.pendingEvents = nil
		if len(queued) == 0 {
			s.historicalDone = true
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()

		log.Debugf("Processing %d queued notifications", len(queued))
		for _, ev := range queued {
			s.apply(ev)
		}
	}

	log.Infof("Historical sync completed at height %d", currentHeight)
}

// syncBlock indexes a single block during historical sync
func (s *Syncer) syncBlock(height int64) error {
	block, txs, err := s.notifier.GetBlockByHeight(height)
	if err != nil {
		return err
	}
	return s.processBlock(block, txs)
}

// queue holds ev back while historical sync runs. It reports false once
// notifications are processed directly.
func (s *Syncer) queue(ev *pendingEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historicalDone {
		return false
	}
	s.pendingEvents = append(s.pendingEvents, ev)
	return true
}

func (s *Syncer) apply(ev *pendingEvent) {
	if ev.block == nil {
		if err := s.revertBlock(ev.hash, ev.height); err != nil {
			log.Errorf("Failed to revert block %d: %v", ev.height, err)
		}
		return
	}
	if err := s.processBlock(ev.block, ev.txs); err != nil {
		log.Errorf("Failed to process block %d: %v", ev.block.Height, err)
	}
}

// handleBlockConnected processes a newly connected block
func (s *Syncer) handleBlockConnected(block *models.Block, txs []*models.Transaction) {
	log.Debugf("New block connected: %d %s", block.Height, block.Hash)

	ev := &pendingEvent{block: block, txs: txs}
	if s.queue(ev) {
		log.Debugf("Queued block %d for later (historical sync in progress)", block.Height)
		return
	}
	s.apply(ev)
}

// handleBlockDisconnected handles a block dropped by a chain replacement
func (s *Syncer) handleBlockDisconnected(blockHash string, height int64) {
	log.Debugf("Block disconnected: %d %s", height, blockHash)

	ev := &pendingEvent{hash: blockHash, height: height}
	if s.queue(ev) {
		return
	}
	s.apply(ev)
}

// processBlock stores a block and its transactions and credits the
// addresses they touch. A block already indexed is skipped; a different
// block at the same height is reverted first.
func (s *Syncer) processBlock(block *models.Block, txs []*models.Transaction) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.blockStore.GetByHeight(block.Height)
	if err != nil {
		return errors.Wrap(err, "failed to look up height")
	}
	if existing != nil {
		if existing.Hash == block.Hash {
			return nil
		}
		log.Warnf("Height %d already holds %s, reverting it", block.Height, existing.Hash)
		if err := s.revertBlockLocked(existing.Hash, existing.Height); err != nil {
			return err
		}
	}

	if err := s.blockStore.Save(block); err != nil {
		return errors.Wrap(err, "failed to save block")
	}
	if err := s.txStore.SaveBatch(txs); err != nil {
		return errors.Wrap(err, "failed to save transactions")
	}

	for _, tx := range txs {
		s.applyTx(tx, 1)
	}

	synced, err := s.syncStore.GetSyncedHeight()
	if err != nil {
		return err
	}
	if block.Height > synced {
		if err := s.syncStore.SetSyncedHeight(block.Height); err != nil {
			return errors.Wrap(err, "failed to update sync state")
		}
	}
	return nil
}

// applyTx adds (sign 1) or removes (sign -1) the effect of tx on the
// addresses it touches.
func (s *Syncer) applyTx(tx *models.Transaction, sign int) {
	f := float64(sign)

	if tx.To != "" {
		if err := s.addressStore.UpdateBalance(tx.To, f*tx.Amount, 0, 0, sign); err != nil {
			log.Warnf("Could not update address balance: %v", err)
		}
		s.updateRef(tx.To, tx, sign)
	}

	if tx.From != "" {
		txDelta := sign
		if tx.From == tx.To {
			txDelta = 0
		}
		if err := s.addressStore.UpdateBalance(tx.From, 0, f*tx.Amount, f*tx.Fee, txDelta); err != nil {
			log.Warnf("Could not update address balance: %v", err)
		}
		s.updateRef(tx.From, tx, sign)
	}
}

func (s *Syncer) updateRef(address string, tx *models.Transaction, sign int) {
	var err error
	if sign > 0 {
		err = s.addressStore.AddTxReference(address, tx.BlockHeight, tx.TxID)
	} else {
		err = s.addressStore.RemoveTxReference(address, tx.BlockHeight, tx.TxID)
	}
	if err != nil {
		log.Warnf("Could not update tx reference for %s: %v", address, err)
	}
}

// revertBlock removes an indexed block and undoes its address updates
func (s *Syncer) revertBlock(blockHash string, height int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.revertBlockLocked(blockHash, height)
}

func (s *Syncer) revertBlockLocked(blockHash string, height int64) error {
	block, err := s.blockStore.GetByHash(blockHash)
	if err != nil {
		return errors.Wrap(err, "failed to get block")
	}
	if block == nil {
		log.Debugf("Block %s was never indexed, nothing to revert", blockHash)
		return nil
	}

	txs, err := s.txStore.GetByBlock(blockHash)
	if err != nil {
		return errors.Wrap(err, "failed to get block transactions")
	}

	txids := make([]string, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		s.applyTx(txs[i], -1)
		txids = append(txids, txs[i].TxID)
	}
	if err := s.txStore.DeleteBatch(txids); err != nil {
		log.Warnf("Could not delete transactions: %v", err)
	}

	if err := s.blockStore.Delete(blockHash, height); err != nil {
		return errors.Wrap(err, "failed to delete block")
	}

	// Update sync state to previous block
	if err := s.syncStore.SetSyncedHeight(height - 1); err != nil {
		return errors.Wrap(err, "failed to update sync state")
	}

	return nil
}

// IsSyncing returns true if the syncer is currently running
func (s *Syncer) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncing
}

// IsHistoricalDone returns true once the startup backfill has finished
func (s *Syncer) IsHistoricalDone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historicalDone
}

// Status is a snapshot of the syncer's progress.
type Status struct {
	Syncing        bool  `json:"syncing"`
	HistoricalDone bool  `json:"historical_done"`
	BulkLoading    bool  `json:"bulk_loading"`
	SyncedHeight   int64 `json:"synced_height"`
}

// Status reports whether the syncer runs, whether the backfill finished and
// whether index writes are currently unsynced.
func (s *Syncer) Status() (Status, error) {
	height, err := s.syncStore.GetSyncedHeight()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Syncing:        s.IsSyncing(),
		HistoricalDone: s.IsHistoricalDone(),
		BulkLoading:    s.db.IsHistoricalSyncMode(),
		SyncedHeight:   height,
	}, nil
}

// GetSyncedHeight returns the last indexed block height
func (s *Syncer) GetSyncedHeight() (int64, error) {
	return s.syncStore.GetSyncedHeight()
}
