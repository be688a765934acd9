package handlers

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/thanhnp/family-currency/internal/keys"
	"github.com/thanhnp/family-currency/internal/ledger"
	"github.com/thanhnp/family-currency/internal/miner"
	"github.com/thanhnp/family-currency/internal/p2p"
)

// Ledger is the ledger surface served over HTTP.
type Ledger interface {
	ledger.Balances
	SubmitTransaction(tx *ledger.Transaction) error
	Mine(ctx context.Context, minerAddress string) (*ledger.Block, error)
	IsValid() bool
	Tip() *ledger.Block
	Height() int64
	Pending() []*ledger.Transaction
	BlockByHeight(height int64) (*ledger.Block, bool)
	Transaction(txID string) (*ledger.Location, bool)
	History(address string) []*ledger.Location
	Stats() ledger.Stats
	Difficulty() int
	MiningReward() float64
}

// Wallets creates key pairs and signs transactions on behalf of callers.
type Wallets interface {
	ledger.Signer
	Generate() (*keys.KeyPair, error)
}

// Network is the peer-to-peer surface used by the API.
type Network interface {
	Peers() []p2p.PeerInfo
	Connect(ctx context.Context, url string) error
	BroadcastBlock(block *ledger.Block)
	BroadcastTransaction(tx *ledger.Transaction)
}

// MinerStats reports the background miner's counters.
type MinerStats interface {
	Info() miner.Info
}

// blockResponse is a block annotated with its height.
type blockResponse struct {
	Height int64 `json:"height"`
	*ledger.Block
}

// respondError maps ledger and network errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrStaleTip):
		status = http.StatusConflict
	case errors.Is(err, p2p.ErrNetwork):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
