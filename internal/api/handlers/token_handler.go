package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/family-currency/internal/ledger"
)

// TokenHandler handles mint, transfer, burn and balance requests
type TokenHandler struct {
	ledger  Ledger
	wallets Wallets
	network Network
}

// NewTokenHandler creates a new TokenHandler. network may be nil.
func NewTokenHandler(l Ledger, wallets Wallets, network Network) *TokenHandler {
	return &TokenHandler{ledger: l, wallets: wallets, network: network}
}

type mintRequest struct {
	ToAddress string  `json:"toAddress" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
}

type transferRequest struct {
	FromAddress string  `json:"fromAddress" binding:"required"`
	ToAddress   string  `json:"toAddress" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	PrivateKey  string  `json:"privateKey" binding:"required"`
}

type burnRequest struct {
	FromAddress string  `json:"fromAddress" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	PrivateKey  string  `json:"privateKey" binding:"required"`
}

// Mint submits an unsigned mint to the pending pool
// POST /api/tokens/mint
func (h *TokenHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "toAddress and amount are required")
		return
	}

	tx, err := ledger.NewMint(req.ToAddress, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	h.submit(c, tx)
}

// Transfer signs a transfer with the supplied key and submits it
// POST /api/tokens/transfer
func (h *TokenHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "fromAddress, toAddress, amount and privateKey are required")
		return
	}

	tx, err := ledger.NewTransfer(req.FromAddress, req.ToAddress, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tx.Sign(h.wallets, req.PrivateKey); err != nil {
		respondError(c, err)
		return
	}
	h.submit(c, tx)
}

// Burn signs a burn with the supplied key and submits it
// POST /api/tokens/burn
func (h *TokenHandler) Burn(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "fromAddress, amount and privateKey are required")
		return
	}

	tx, err := ledger.NewBurn(req.FromAddress, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tx.Sign(h.wallets, req.PrivateKey); err != nil {
		respondError(c, err)
		return
	}
	h.submit(c, tx)
}

// submit admits tx to the pending pool and announces it to peers.
func (h *TokenHandler) submit(c *gin.Context, tx *ledger.Transaction) {
	if err := h.ledger.SubmitTransaction(tx); err != nil {
		respondError(c, err)
		return
	}
	if h.network != nil {
		h.network.BroadcastTransaction(tx)
	}

	c.JSON(http.StatusAccepted, gin.H{"transaction": tx})
}

// Balance returns the confirmed balance of an address
// GET /api/tokens/balance/:address
func (h *TokenHandler) Balance(c *gin.Context) {
	address := c.Param("address")
	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"balance": h.ledger.BalanceOf(address),
	})
}
