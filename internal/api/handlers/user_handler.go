package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// recentHistory is how many transactions a user lookup returns.
const recentHistory = 10

// UserHandler handles wallet creation and lookup
type UserHandler struct {
	ledger  Ledger
	wallets Wallets
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(l Ledger, wallets Wallets) *UserHandler {
	return &UserHandler{ledger: l, wallets: wallets}
}

type createUserRequest struct {
	Name string `json:"name"`
}

// Create generates a key pair for a new user. The private key is returned
// once and never stored.
// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	pair, err := h.wallets.Generate()
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	if req.Name == "" {
		req.Name = "User_" + now.Format("20060102150405")
	}

	c.JSON(http.StatusCreated, gin.H{
		"name":       req.Name,
		"address":    pair.Address,
		"privateKey": pair.PrivateKey,
		"createdAt":  now.UTC(),
		"balance":    h.ledger.BalanceOf(pair.Address),
	})
}

// Get returns an address's balance and its most recent transactions
// GET /api/users/:address
func (h *UserHandler) Get(c *gin.Context) {
	address := c.Param("address")

	history := h.ledger.History(address)
	recent := history
	if len(recent) > recentHistory {
		recent = recent[len(recent)-recentHistory:]
	}

	c.JSON(http.StatusOK, gin.H{
		"address":          address,
		"balance":          h.ledger.BalanceOf(address),
		"transactionCount": len(history),
		"transactions":     recent,
	})
}
