package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/models"
)

// BlockStore handles block storage operations
type BlockStore struct {
	db   *PebbleDB
	sync *SyncStore
}

// NewBlockStore creates a new BlockStore
func NewBlockStore(db *PebbleDB) *BlockStore {
	return &BlockStore{db: db, sync: NewSyncStore(db)}
}

// blockKey creates a key for the blocks column family
func blockKey(hash string) []byte {
	return []byte(hash)
}

// blockHeightKey creates a key for the blocks_by_height column family
func blockHeightKey(height int64) []byte {
	return []byte(fmt.Sprintf("%012d", height))
}

// Save stores a block in the database
func (s *BlockStore) Save(block *models.Block) error {
	batch := s.db.NewBatch()
	defer batch.Destroy()

	if err := s.saveBatch(batch, block); err != nil {
		return err
	}
	return s.db.WriteBatch(batch)
}

func (s *BlockStore) saveBatch(batch *WriteBatch, block *models.Block) error {
	// Store block by hash
	if err := s.db.PutJSONBatch(batch, CFBlocks, blockKey(block.Hash), block); err != nil {
		return err
	}

	// Store hash by height for lookup
	return s.db.PutBatch(batch, CFBlocksByHeight, blockHeightKey(block.Height), []byte(block.Hash))
}

// GetByHash retrieves a block by its hash
func (s *BlockStore) GetByHash(hash string) (*models.Block, error) {
	data, err := s.db.Get(CFBlocks, blockKey(hash))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var block models.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal block")
	}
	return &block, nil
}

// GetByHeight retrieves a block by its height
func (s *BlockStore) GetByHeight(height int64) (*models.Block, error) {
	// Get hash from height index
	hashData, err := s.db.Get(CFBlocksByHeight, blockHeightKey(height))
	if err != nil {
		return nil, err
	}
	if hashData == nil {
		return nil, nil
	}

	return s.GetByHash(string(hashData))
}

// GetLatest retrieves the block at the indexed height
func (s *BlockStore) GetLatest() (*models.Block, error) {
	height, err := s.sync.GetSyncedHeight()
	if err != nil {
		return nil, err
	}
	if height < 0 {
		return nil, nil
	}
	return s.GetByHeight(height)
}

// GetRecent returns up to limit blocks ordered from the newest, skipping
// offset blocks below the indexed height.
func (s *BlockStore) GetRecent(offset, limit int) ([]*models.Block, error) {
	height, err := s.sync.GetSyncedHeight()
	if err != nil {
		return nil, err
	}

	blocks := make([]*models.Block, 0, limit)
	for h := height - int64(offset); h >= 0 && len(blocks) < limit; h-- {
		block, err := s.GetByHeight(h)
		if err != nil {
			return nil, err
		}
		if block != nil {
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}

// Delete removes a block from the database. The height index entry is only
// removed while it still points at hash.
func (s *BlockStore) Delete(hash string, height int64) error {
	indexed, err := s.db.Get(CFBlocksByHeight, blockHeightKey(height))
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Destroy()

	if err := s.db.DeleteBatch(batch, CFBlocks, blockKey(hash)); err != nil {
		return err
	}
	if string(indexed) == hash {
		if err := s.db.DeleteBatch(batch, CFBlocksByHeight, blockHeightKey(height)); err != nil {
			return err
		}
	}

	return s.db.WriteBatch(batch)
}
