package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mezonai/omniverse/logx"
)

const (
	postgresMaxRetries   = 5
	postgresRetryDelay   = 3 * time.Second
	postgresDefaultTable = "omniverse_state"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOptions selects the server and the key/value table state is written to.
type PostgresOptions struct {
	DSN   string
	Table string
}

// PostgresProvider implements IterableProvider on a two-column bytea table.
// bytea compares bytewise, so ORDER BY key matches the other providers' key order.
type PostgresProvider struct {
	once  sync.Once
	db    *sql.DB
	table string
}

// NewPostgresProvider connects with retries and creates the table if needed
func NewPostgresProvider(opts PostgresOptions) (*PostgresProvider, error) {
	table := opts.Table
	if table == "" {
		table = postgresDefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid postgres table name %q", table)
	}

	db, err := connectPostgres(opts.DSN)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key   BYTEA PRIMARY KEY,
		value BYTEA NOT NULL
	)`, table))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &PostgresProvider{db: db, table: table}, nil
}

func connectPostgres(dsn string) (*sql.DB, error) {
	var lastErr error
	for attempt := 0; attempt < postgresMaxRetries; attempt++ {
		if attempt > 0 {
			logx.Warn("POSTGRES", fmt.Sprintf("Retrying connection (attempt %d/%d) after error: %v", attempt+1, postgresMaxRetries, lastErr))
			time.Sleep(postgresRetryDelay)
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			lastErr = fmt.Errorf("failed to open database connection: %w", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			_ = db.Close()
			lastErr = fmt.Errorf("failed to ping database: %w", err)
			continue
		}
		logx.Info("POSTGRES", "Database connection established")
		return db, nil
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", postgresMaxRetries, lastErr)
}

func (p *PostgresProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return value, err
}

func (p *PostgresProvider) Put(key, value []byte) error {
	_, err := p.db.Exec(upsertQuery(p.table), key, value)
	return err
}

func (p *PostgresProvider) Delete(key []byte) error {
	_, err := p.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table), key)
	return err
}

func (p *PostgresProvider) Has(key []byte) (bool, error) {
	var found bool
	err := p.db.QueryRow(fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1)`, p.table), key).Scan(&found)
	return found, err
}

func (p *PostgresProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

func (p *PostgresProvider) Batch() DatabaseBatch {
	return &PostgresBatch{provider: p}
}

func (p *PostgresProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	query, args := prefixQuery(p.table, prefix)
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if !callback(key, value) {
			break
		}
	}
	return rows.Err()
}

func upsertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, table)
}

// prefixQuery turns a key prefix into a half-open key range.
// A prefix of only 0xff bytes has no upper bound.
func prefixQuery(table string, prefix []byte) (string, []interface{}) {
	r := util.BytesPrefix(prefix)
	if r.Limit == nil {
		return fmt.Sprintf(`SELECT key, value FROM %s WHERE key >= $1 ORDER BY key`, table),
			[]interface{}{r.Start}
	}
	return fmt.Sprintf(`SELECT key, value FROM %s WHERE key >= $1 AND key < $2 ORDER BY key`, table),
		[]interface{}{r.Start, r.Limit}
}

// PostgresBatch applies its writes in one SQL transaction
type PostgresBatch struct {
	provider *PostgresProvider
	ops      []batchOp
}

func (b *PostgresBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *PostgresBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

func (b *PostgresBatch) Write() error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.provider.db.Begin()
	if err != nil {
		return err
	}
	upsert := upsertQuery(b.provider.table)
	del := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, b.provider.table)
	for _, op := range b.ops {
		if op.delete {
			_, err = tx.Exec(del, op.key)
		} else {
			_, err = tx.Exec(upsert, op.key, op.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *PostgresBatch) Reset() {
	b.ops = b.ops[:0]
}

func (b *PostgresBatch) Close() error {
	b.ops = nil
	return nil
}
