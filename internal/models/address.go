package models

// Address represents an address with balance information
type Address struct {
	Address       string  `json:"address"`
	Balance       float64 `json:"balance"`
	TotalReceived float64 `json:"total_received"`
	TotalSent     float64 `json:"total_sent"`
	TotalFees     float64 `json:"total_fees"`
	TxCount       int     `json:"tx_count"`
}
