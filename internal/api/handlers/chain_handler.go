package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ChainHandler serves read-only views of the live chain
type ChainHandler struct {
	ledger Ledger
}

// NewChainHandler creates a new ChainHandler
func NewChainHandler(l Ledger) *ChainHandler {
	return &ChainHandler{ledger: l}
}

// Height returns the tip height
// GET /api/blockchain/height
func (h *ChainHandler) Height(c *gin.Context) {
	height := h.ledger.Height()
	c.JSON(http.StatusOK, gin.H{
		"height":      height,
		"totalBlocks": height + 1,
	})
}

// Latest returns the tip block
// GET /api/blockchain/latest
func (h *ChainHandler) Latest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"block": blockResponse{Height: h.ledger.Height(), Block: h.ledger.Tip()},
	})
}

// GetByHeight returns a block by its height
// GET /api/blockchain/block/:height
func (h *ChainHandler) GetByHeight(c *gin.Context) {
	height, err := strconv.ParseInt(c.Param("height"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid height")
		return
	}

	block, ok := h.ledger.BlockByHeight(height)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Block not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"block": blockResponse{Height: height, Block: block}})
}

// Stats returns chain statistics
// GET /api/blockchain/stats
func (h *ChainHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.ledger.Stats()})
}

// Pending returns the pending pool
// GET /api/blockchain/pending
func (h *ChainHandler) Pending(c *gin.Context) {
	pending := h.ledger.Pending()
	c.JSON(http.StatusOK, gin.H{
		"pendingTransactions": pending,
		"count":               len(pending),
	})
}

// Valid re-validates the whole chain
// GET /api/blockchain/valid
func (h *ChainHandler) Valid(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isValid": h.ledger.IsValid()})
}

// GetTransaction returns a confirmed transaction with its block location
// GET /api/blockchain/transaction/:txId
func (h *ChainHandler) GetTransaction(c *gin.Context) {
	loc, ok := h.ledger.Transaction(c.Param("txId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	c.JSON(http.StatusOK, loc)
}
