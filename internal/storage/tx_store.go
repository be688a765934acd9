package storage

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/models"
)

// TxStore handles transaction storage operations
type TxStore struct {
	db *PebbleDB
}

// NewTxStore creates a new TxStore
func NewTxStore(db *PebbleDB) *TxStore {
	return &TxStore{db: db}
}

// txKey creates a key for the transactions column family
func txKey(txid string) []byte {
	return []byte(txid)
}

// Save stores a transaction in the database
func (s *TxStore) Save(tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "failed to marshal transaction")
	}

	return s.db.Put(CFTransactions, txKey(tx.TxID), data)
}

// Get retrieves a transaction by its ID
func (s *TxStore) Get(txid string) (*models.Transaction, error) {
	data, err := s.db.Get(CFTransactions, txKey(txid))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var tx models.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal transaction")
	}
	return &tx, nil
}

// GetByBlock retrieves all transactions in a block
func (s *TxStore) GetByBlock(blockHash string) ([]*models.Transaction, error) {
	iter, err := s.db.NewIterator(CFTransactions)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var txs []*models.Transaction
	for ; iter.Valid(); iter.Next() {
		var tx models.Transaction
		if err := iter.Unmarshal(&tx); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal transaction")
		}

		if tx.BlockHash == blockHash {
			txs = append(txs, &tx)
		}
	}

	return txs, nil
}

// Delete removes a transaction from the database
func (s *TxStore) Delete(txid string) error {
	return s.db.Delete(CFTransactions, txKey(txid))
}

// SaveBatch saves multiple transactions in a single batch operation
func (s *TxStore) SaveBatch(txs []*models.Transaction) error {
	batch := s.db.NewBatch()
	defer batch.Destroy()

	for _, tx := range txs {
		if err := s.db.PutJSONBatch(batch, CFTransactions, txKey(tx.TxID), tx); err != nil {
			return err
		}
	}

	return s.db.WriteBatch(batch)
}

// DeleteBatch deletes multiple transactions in a single batch operation
func (s *TxStore) DeleteBatch(txids []string) error {
	batch := s.db.NewBatch()
	defer batch.Destroy()

	for _, txid := range txids {
		if err := s.db.DeleteBatch(batch, CFTransactions, txKey(txid)); err != nil {
			return err
		}
	}

	return s.db.WriteBatch(batch)
}
