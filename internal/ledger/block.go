package ledger

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Block is a batch of transactions sealed by proof-of-work.
type Block struct {
	Timestamp    int64          `json:"timestamp"` // unix milliseconds
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previousHash"`
	Hash         string         `json:"hash"`
	Nonce        uint64         `json:"nonce"`
	Miner        string         `json:"miner"`
}

// NewBlock creates an unmined block on top of previousHash. Its hash is
// computed with nonce 0 and no miner.
func NewBlock(timestamp int64, txs []*Transaction, previousHash string) *Block {
	b := &Block{
		Timestamp:    timestamp,
		Transactions: txs,
		PreviousHash: previousHash,
	}
	b.Hash = b.CalculateHash()
	return b
}

// CalculateHash returns the hex SHA-256 digest of the block header fields
// and the serialized transactions.
func (b *Block) CalculateHash() string {
	prefix, ok := b.hashPrefix()
	if !ok {
		return ""
	}
	return hashWith(prefix, b.Nonce, b.Miner)
}

// hashPrefix returns the part of the hash input that does not change while
// searching for a nonce.
func (b *Block) hashPrefix() (string, bool) {
	txs := b.Transactions
	if txs == nil {
		txs = []*Transaction{}
	}
	data, err := json.Marshal(txs)
	if err != nil {
		return "", false
	}
	return b.PreviousHash + strconv.FormatInt(b.Timestamp, 10) + string(data), true
}

func hashWith(prefix string, nonce uint64, miner string) string {
	return sha256Hex(prefix + strconv.FormatUint(nonce, 10) + miner)
}

// HasProof reports whether hash starts with difficulty zero characters.
func HasProof(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// Mine searches nonces from the current one upwards until the hash meets
// difficulty, then records miner, nonce and hash on the block. The context is
// checked on every attempt; if it is cancelled the block is left untouched and
// the context error is returned.
func (b *Block) Mine(ctx context.Context, difficulty int, miner string) error {
	prefix, ok := b.hashPrefix()
	if !ok {
		return errors.Wrap(ErrValidation, "transactions cannot be serialized")
	}

	nonce := b.Nonce
	hash := hashWith(prefix, nonce, miner)
	for !HasProof(hash, difficulty) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		nonce++
		hash = hashWith(prefix, nonce, miner)
	}

	b.Miner = miner
	b.Nonce = nonce
	b.Hash = hash
	return nil
}

// HasValidTransactions reports whether every transaction verifies. It never
// fails; an unsigned transaction simply makes the block invalid.
func (b *Block) HasValidTransactions(v Verifier) bool {
	for _, tx := range b.Transactions {
		ok, err := tx.IsValid(v)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Size returns the length in bytes of the block's JSON encoding.
func (b *Block) Size() int {
	data, err := json.Marshal(b)
	if err != nil {
		return 0
	}
	return len(data)
}
