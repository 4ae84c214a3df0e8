package store

import (
	"fmt"

	"github.com/mezonai/omniverse/db"
	"github.com/mezonai/omniverse/jsonx"
)

// Meta holds the scalar counters that are not derivable from the other records.
// Key: MetaKeyState => JSON Meta
type Meta struct {
	DealingIndex uint64 `json:"dealing_index"`
	NextQueueSeq uint64 `json:"next_queue_seq"`
}

type StateMetaStore interface {
	SetMeta(meta Meta) error
	GetMeta() (Meta, bool, error)
}

type GenericStateMetaStore struct {
	provider db.DatabaseProvider
}

func NewGenericStateMetaStore(provider db.DatabaseProvider) *GenericStateMetaStore {
	return &GenericStateMetaStore{provider: provider}
}

func (s *GenericStateMetaStore) SetMeta(meta Meta) error {
	value, err := jsonx.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	if err := s.provider.Put([]byte(MetaKeyState), value); err != nil {
		return fmt.Errorf("failed to store meta: %w", err)
	}
	return nil
}

func (s *GenericStateMetaStore) GetMeta() (Meta, bool, error) {
	value, err := s.provider.Get([]byte(MetaKeyState))
	if err != nil {
		return Meta{}, false, fmt.Errorf("failed to get meta: %w", err)
	}
	if len(value) == 0 {
		return Meta{}, false, nil
	}
	var meta Meta
	if err := jsonx.Unmarshal(value, &meta); err != nil {
		return Meta{}, false, fmt.Errorf("failed to unmarshal meta: %w", err)
	}
	return meta, true, nil
}
