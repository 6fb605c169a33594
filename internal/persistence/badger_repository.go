package persistence

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"weex-grid-bot-go/internal/models"
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
// The whole strategy state lives under one key; Badger's transaction gives
// the atomic-replace guarantee the file backend gets from rename.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository opens (or creates) a BadgerDB at dbPath.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging would interleave with ours; errors still surface
	// through the DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte("strategy_state"),
	}, nil
}

func (r *badgerRepository) Save(state *models.StrategyState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

func (r *badgerRepository) Load() (*models.StrategyState, error) {
	var state models.StrategyState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *badgerRepository) Erase() error {
	return r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(r.stateKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
