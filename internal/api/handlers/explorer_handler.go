package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/family-currency/internal/models"
	"github.com/thanhnp/family-currency/internal/storage"
	"github.com/thanhnp/family-currency/internal/sync"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	overviewBlocks  = 5
)

// IndexStatus reports the progress of whatever feeds the index.
type IndexStatus interface {
	Status() (sync.Status, error)
}

// ExplorerHandler serves the explorer index
type ExplorerHandler struct {
	blockStore   *storage.BlockStore
	txStore      *storage.TxStore
	addressStore *storage.AddressStore
	syncStore    *storage.SyncStore
	status       IndexStatus
}

// NewExplorerHandler creates a new ExplorerHandler. status may be nil.
func NewExplorerHandler(stores *storage.Stores, status IndexStatus) *ExplorerHandler {
	return &ExplorerHandler{
		blockStore:   stores.BlockStore,
		txStore:      stores.TxStore,
		addressStore: stores.AddressStore,
		syncStore:    stores.SyncStore,
		status:       status,
	}
}

// TransactionWithConfirmations represents an indexed transaction with confirmations
type TransactionWithConfirmations struct {
	*models.Transaction
	Confirmations int64 `json:"confirmations"`
}

func (h *ExplorerHandler) withConfirmations(tx *models.Transaction, currentHeight int64) TransactionWithConfirmations {
	var confirmations int64
	if currentHeight >= 0 && tx.BlockHeight >= 0 {
		confirmations = currentHeight - tx.BlockHeight + 1
	}
	return TransactionWithConfirmations{Transaction: tx, Confirmations: confirmations}
}

// Overview returns the indexed height and the most recent blocks
// GET /api/explorer/overview
func (h *ExplorerHandler) Overview(c *gin.Context) {
	height, err := h.syncStore.GetSyncedHeight()
	if err != nil {
		respondError(c, err)
		return
	}

	recent, err := h.blockStore.GetRecent(0, overviewBlocks)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"indexed_height": height,
		"recent_blocks":  recent,
	}
	if h.status != nil {
		status, err := h.status.Status()
		if err != nil {
			respondError(c, err)
			return
		}
		resp["sync"] = status
	}

	c.JSON(http.StatusOK, resp)
}

// GetBlocks returns a page of blocks, newest first
// GET /api/explorer/blocks?offset=0&limit=20
func (h *ExplorerHandler) GetBlocks(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "Invalid offset")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		badRequest(c, "Invalid limit")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	blocks, err := h.blockStore.GetRecent(offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"offset": offset,
		"limit":  limit,
		"count":  len(blocks),
		"blocks": blocks,
	})
}

// GetBlock returns a block by hash with its transactions
// GET /api/explorer/blocks/:hash
func (h *ExplorerHandler) GetBlock(c *gin.Context) {
	hash := c.Param("hash")

	block, err := h.blockStore.GetByHash(hash)
	if err != nil {
		respondError(c, err)
		return
	}
	if block == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Block not found"})
		return
	}

	txs, err := h.txStore.GetByBlock(hash)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"block":        block,
		"transactions": txs,
	})
}

// GetTransaction returns an indexed transaction with confirmations
// GET /api/explorer/transactions/:txId
func (h *ExplorerHandler) GetTransaction(c *gin.Context) {
	tx, err := h.txStore.Get(c.Param("txId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	currentHeight, err := h.syncStore.GetSyncedHeight()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.withConfirmations(tx, currentHeight))
}

// GetAddress returns an address summary and its transactions, oldest first
// GET /api/explorer/addresses/:address
func (h *ExplorerHandler) GetAddress(c *gin.Context) {
	address := c.Param("address")

	addr, err := h.addressStore.Get(address)
	if err != nil {
		respondError(c, err)
		return
	}
	if addr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Address not found"})
		return
	}

	refs, err := h.addressStore.GetTxReferences(address)
	if err != nil {
		respondError(c, err)
		return
	}

	currentHeight, err := h.syncStore.GetSyncedHeight()
	if err != nil {
		respondError(c, err)
		return
	}
	txs := make([]TransactionWithConfirmations, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, txid := range refs {
		if seen[txid] {
			continue
		}
		seen[txid] = true

		tx, err := h.txStore.Get(txid)
		if err != nil || tx == nil {
			continue
		}
		txs = append(txs, h.withConfirmations(tx, currentHeight))
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      addr,
		"count":        len(txs),
		"transactions": txs,
	})
}
