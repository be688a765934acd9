package notifier

import (
	"github.com/thanhnp/family-currency/internal/models"
)

// BlockHandler is called when a new block is connected
type BlockHandler func(block *models.Block, txs []*models.Transaction)

// DisconnectHandler is called when a block is disconnected by a chain replacement
type DisconnectHandler func(blockHash string, height int64)

// BlockNotifier defines the interface for block notifiers
type BlockNotifier interface {
	// Start starts the notifier and begins delivering notifications
	Start() error

	// Stop stops the notifier
	Stop() error

	// OnBlockConnected registers a handler for new blocks
	OnBlockConnected(handler BlockHandler)

	// OnBlockDisconnected registers a handler for disconnected blocks
	OnBlockDisconnected(handler DisconnectHandler)

	// GetBlockByHeight retrieves a block by height
	GetBlockByHeight(height int64) (*models.Block, []*models.Transaction, error)

	// GetCurrentHeight returns the current chain height
	GetCurrentHeight() (int64, error)
}
