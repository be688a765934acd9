package storage

// Stores holds every store of the explorer index
type Stores struct {
	DB           *PebbleDB
	BlockStore   *BlockStore
	TxStore      *TxStore
	AddressStore *AddressStore
	SyncStore    *SyncStore
}

// NewStores creates all stores using the given database
func NewStores(db *PebbleDB) *Stores {
	return &Stores{
		DB:           db,
		BlockStore:   NewBlockStore(db),
		TxStore:      NewTxStore(db),
		AddressStore: NewAddressStore(db),
		SyncStore:    NewSyncStore(db),
	}
}

// Close closes the database
func (s *Stores) Close() error {
	return s.DB.Close()
}
