package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/models"
)

// AddressStore handles address storage operations
type AddressStore struct {
	db *PebbleDB
}

// NewAddressStore creates a new AddressStore
func NewAddressStore(db *PebbleDB) *AddressStore {
	return &AddressStore{db: db}
}

// addressKey creates a key for the addresses column family
func addressKey(address string) []byte {
	return []byte(address)
}

// addressTxKey creates a key for the address_txs column family. Ordering
// by height keeps an address's history in chain order.
func addressTxKey(address string, height int64, txid string) []byte {
	return []byte(fmt.Sprintf("%s:%012d:%s", address, height, txid))
}

// addressPrefix creates a prefix for all entries of an address
func addressPrefix(address string) []byte {
	return []byte(address + ":")
}

// Save stores an address in the database
func (s *AddressStore) Save(addr *models.Address) error {
	data, err := json.Marshal(addr)
	if err != nil {
		return errors.Wrap(err, "failed to marshal address")
	}

	return s.db.Put(CFAddresses, addressKey(addr.Address), data)
}

// Get retrieves an address by its value
func (s *AddressStore) Get(address string) (*models.Address, error) {
	data, err := s.db.Get(CFAddresses, addressKey(address))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var addr models.Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal address")
	}
	return &addr, nil
}

// GetOrCreate retrieves an address or creates a new one if it doesn't exist
func (s *AddressStore) GetOrCreate(address string) (*models.Address, error) {
	addr, err := s.Get(address)
	if err != nil {
		return nil, err
	}
	if addr != nil {
		return addr, nil
	}

	return &models.Address{Address: address}, nil
}

// AddTxReference records that txid at height touched address
func (s *AddressStore) AddTxReference(address string, height int64, txid string) error {
	return s.db.Put(CFAddressTxs, addressTxKey(address, height, txid), []byte(txid))
}

// RemoveTxReference removes a transaction reference from an address
func (s *AddressStore) RemoveTxReference(address string, height int64, txid string) error {
	return s.db.Delete(CFAddressTxs, addressTxKey(address, height, txid))
}

// GetTxReferences retrieves the transaction ids of an address, oldest first
func (s *AddressStore) GetTxReferences(address string) ([]string, error) {
	prefix := addressPrefix(address)
	iter, err := s.db.NewPrefixIterator(CFAddressTxs, prefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var refs []string
	for ; iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		refs = append(refs, string(iter.Value()))
	}

	return refs, nil
}

// UpdateBalance applies received, sent and fee deltas and adjusts the
// transaction count by txDelta. Negative deltas revert a block; an address
// left with no transactions is removed.
func (s *AddressStore) UpdateBalance(address string, received, sent, fees float64, txDelta int) error {
	addr, err := s.GetOrCreate(address)
	if err != nil {
		return err
	}

	addr.TotalReceived += received
	addr.TotalSent += sent
	addr.TotalFees += fees
	addr.Balance = addr.TotalReceived - addr.TotalSent - addr.TotalFees
	addr.TxCount += txDelta

	if addr.TxCount <= 0 {
		return s.Delete(address)
	}
	return s.Save(addr)
}

// Delete removes an address from the database
func (s *AddressStore) Delete(address string) error {
	return s.db.Delete(CFAddresses, addressKey(address))
}
