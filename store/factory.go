package store

import (
	"fmt"

	"github.com/mezonai/omniverse/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// MemoryStoreType uses LevelDB over in-memory storage; nothing survives a restart
	MemoryStoreType StoreType = "memory"

	// RedisStoreType uses the Redis implementation
	RedisStoreType StoreType = "redis"

	// BoltStoreType uses a bbolt file under Directory
	BoltStoreType StoreType = "bolt"

	// PostgresStoreType uses a key/value table in PostgreSQL
	PostgresStoreType StoreType = "postgres"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Type specifies which store implementation to use
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory"`

	// Address, Password, DB and Namespace are only used by the redis store
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	Namespace string `json:"namespace" yaml:"namespace"`

	// DSN and Table are only used by the postgres store
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case "":
		return fmt.Errorf("store type cannot be empty")
	case LevelDBStoreType, BoltStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty")
		}
		return nil
	case RedisStoreType:
		if sc.Address == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		return nil
	case PostgresStoreType:
		if sc.DSN == "" {
			return fmt.Errorf("postgres dsn cannot be empty")
		}
		return nil
	case MemoryStoreType:
		return nil
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateStateStore opens the configured provider and wraps it in a StateStore
func (sf *StoreFactory) CreateStateStore(config *StoreConfig) (StateStore, error) {
	provider, err := sf.CreateProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	stateStore, err := NewGenericStateStore(provider)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}
	return stateStore, nil
}

// CreateProvider creates a database provider based on the configuration
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.DatabaseProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)

	case MemoryStoreType:
		return db.NewMemLevelDBProvider()

	case RedisStoreType:
		return db.NewRedisProvider(db.RedisOptions{
			Address:   config.Address,
			Password:  config.Password,
			DB:        config.DB,
			Namespace: config.Namespace,
		})

	case BoltStoreType:
		return db.NewBoltProvider(config.Directory)

	case PostgresStoreType:
		return db.NewPostgresProvider(db.PostgresOptions{
			DSN:   config.DSN,
			Table: config.Table,
		})

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// Global factory instance
var globalFactory = NewStoreFactory()

// CreateStore creates a new state store using the global factory
func CreateStore(config *StoreConfig) (StateStore, error) {
	return globalFactory.CreateStateStore(config)
}
