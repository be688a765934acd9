package ledger

// Genesis parameters shared by every node.
const (
	GenesisTimestamp int64   = 1735689600000 // 2025-01-01T00:00:00Z
	GenesisAddress           = "genesis-address"
	GenesisSupply    float64 = 1_000_000
	GenesisPrevHash          = "0"
)

// GenesisBlock builds the fixed first block. Every call returns identical
// content: the single mint is stamped with the genesis time and nonce 0, and
// the block hash is computed without mining.
func GenesisBlock() *Block {
	mint := newTransactionAt(KindMint, "", GenesisAddress, GenesisSupply, GenesisTimestamp, 0)
	return NewBlock(GenesisTimestamp, []*Transaction{mint}, GenesisPrevHash)
}
