package models

import (
	"time"
)

// Transaction represents an indexed transaction and its block location
type Transaction struct {
	TxID        string    `json:"txid"`
	BlockHash   string    `json:"block_hash"`
	BlockHeight int64     `json:"block_height"`
	Type        string    `json:"type"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Amount      float64   `json:"amount"`
	Fee         float64   `json:"fee"`
	IsReward    bool      `json:"is_reward"`
	Timestamp   time.Time `json:"timestamp"`
	Signature   string    `json:"signature,omitempty"`
}
