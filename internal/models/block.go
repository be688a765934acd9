package models

import (
	"time"
)

// Block represents an indexed block
type Block struct {
	Hash         string    `json:"hash"`
	Height       int64     `json:"height"`
	PreviousHash string    `json:"previous_hash"`
	Timestamp    time.Time `json:"timestamp"`
	Nonce        uint64    `json:"nonce"`
	Miner        string    `json:"miner"`
	TxCount      int       `json:"tx_count"`
	Size         int       `json:"size"`
}
