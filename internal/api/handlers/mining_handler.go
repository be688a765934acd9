package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MiningHandler handles on-demand mining
type MiningHandler struct {
	ledger  Ledger
	network Network
	miner   MinerStats
}

// NewMiningHandler creates a new MiningHandler. network and miner may be nil.
func NewMiningHandler(l Ledger, network Network, miner MinerStats) *MiningHandler {
	return &MiningHandler{ledger: l, network: network, miner: miner}
}

type mineRequest struct {
	MinerAddress string `json:"minerAddress" binding:"required"`
}

// Mine seals the pending pool into a block and announces it to peers
// POST /api/mining/mine
func (h *MiningHandler) Mine(c *gin.Context) {
	var req mineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "minerAddress is required")
		return
	}

	block, err := h.ledger.Mine(c.Request.Context(), req.MinerAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	if block == nil {
		c.JSON(http.StatusOK, gin.H{
			"message": "No pending transactions",
			"block":   nil,
		})
		return
	}

	if h.network != nil {
		h.network.BroadcastBlock(block)
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Block mined",
		"block":   blockResponse{Height: h.ledger.Height(), Block: block},
	})
}

// Info returns mining parameters and, when the background miner runs, its
// counters
// GET /api/mining/info
func (h *MiningHandler) Info(c *gin.Context) {
	resp := gin.H{
		"difficulty":          h.ledger.Difficulty(),
		"miningReward":        h.ledger.MiningReward(),
		"pendingTransactions": len(h.ledger.Pending()),
	}
	if h.miner != nil {
		resp["miner"] = h.miner.Info()
	}

	c.JSON(http.StatusOK, gin.H{"info": resp})
}
