package storage

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// syncHeightKey is the sync_state key holding the indexed tip height.
var syncHeightKey = []byte("height")

// SyncStore handles sync state storage operations
type SyncStore struct {
	db *PebbleDB
}

// NewSyncStore creates a new SyncStore
func NewSyncStore(db *PebbleDB) *SyncStore {
	return &SyncStore{db: db}
}

// GetSyncedHeight retrieves the last indexed block height, or -1 when
// nothing is indexed
func (s *SyncStore) GetSyncedHeight() (int64, error) {
	data, err := s.db.Get(CFSyncState, syncHeightKey)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return -1, nil
	}

	height, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse sync height")
	}

	return height, nil
}

// SetSyncedHeight sets the last indexed block height
func (s *SyncStore) SetSyncedHeight(height int64) error {
	if height < 0 {
		return s.db.Delete(CFSyncState, syncHeightKey)
	}
	return s.db.Put(CFSyncState, syncHeightKey, []byte(strconv.FormatInt(height, 10)))
}
