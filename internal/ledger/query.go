package ledger

// Location is a confirmed transaction together with the block holding it.
type Location struct {
	Transaction    *Transaction `json:"transaction"`
	BlockHeight    int64        `json:"blockHeight"`
	BlockHash      string       `json:"blockHash"`
	BlockTimestamp int64        `json:"blockTimestamp"`
}

// Stats summarizes the ledger.
type Stats struct {
	Height              int64   `json:"height"`
	TotalBlocks         int     `json:"totalBlocks"`
	TotalTransactions   int     `json:"totalTransactions"`
	TotalSupply         float64 `json:"totalSupply"`
	Difficulty          int     `json:"difficulty"`
	PendingTransactions int     `json:"pendingTransactions"`
	MiningReward        float64 `json:"miningReward"`
	IsValid             bool    `json:"isValid"`
}

// Difficulty returns the number of leading zero hex digits a block hash needs.
func (l *Ledger) Difficulty() int {
	return l.cfg.Difficulty
}

// MiningReward returns the amount minted to the miner of each block.
func (l *Ledger) MiningReward() float64 {
	return l.cfg.MiningReward
}

// Chain returns a copy of the chain.
func (l *Ledger) Chain() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Block(nil), l.chain...)
}

// Tip returns the last block of the chain.
func (l *Ledger) Tip() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1]
}

// Height returns the index of the tip. The genesis block is height 0.
func (l *Ledger) Height() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.chain) - 1)
}

// Pending returns a copy of the pending pool in arrival order.
func (l *Ledger) Pending() []*Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Transaction(nil), l.pending...)
}

// BlockByHeight returns the block at height.
func (l *Ledger) BlockByHeight(height int64) (*Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if height < 0 || height >= int64(len(l.chain)) {
		return nil, false
	}
	return l.chain[height], true
}

// BlockByHash returns the block with the given hash and its height.
func (l *Ledger) BlockByHash(hash string) (*Block, int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, b := range l.chain {
		if b.Hash == hash {
			return b, int64(i), true
		}
	}
	return nil, 0, false
}

// Transaction finds a confirmed transaction by id.
func (l *Ledger) Transaction(txID string) (*Location, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, b := range l.chain {
		for _, tx := range b.Transactions {
			if tx.ID == txID {
				return locate(tx, b, i), true
			}
		}
	}
	return nil, false
}

// History returns every confirmed transaction sent or received by address,
// oldest first.
func (l *Ledger) History(address string) []*Location {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Location
	for i, b := range l.chain {
		for _, tx := range b.Transactions {
			if tx.From == address || tx.To == address {
				out = append(out, locate(tx, b, i))
			}
		}
	}
	return out
}

func locate(tx *Transaction, b *Block, height int) *Location {
	return &Location{
		Transaction:    tx,
		BlockHeight:    int64(height),
		BlockHash:      b.Hash,
		BlockTimestamp: b.Timestamp,
	}
}

// Stats returns a snapshot of chain statistics. TotalSupply is the sum of
// all balances, so burned amounts and paid fees are excluded.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	chain := l.chain
	pending := len(l.pending)
	l.mu.RUnlock()

	stats := Stats{
		Height:              int64(len(chain) - 1),
		TotalBlocks:         len(chain),
		Difficulty:          l.cfg.Difficulty,
		PendingTransactions: pending,
		MiningReward:        l.cfg.MiningReward,
		IsValid:             l.validChain(chain),
	}
	for _, b := range chain {
		stats.TotalTransactions += len(b.Transactions)
		for _, tx := range b.Transactions {
			if tx.To != "" {
				stats.TotalSupply += tx.Amount
			}
			if tx.From != "" {
				stats.TotalSupply -= tx.Amount + tx.Fee()
			}
		}
	}
	return stats
}
