package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresPrefixQuery(t *testing.T) {
	query, args := prefixQuery("kv", []byte("queue:"))
	assert.Equal(t, `SELECT key, value FROM kv WHERE key >= $1 AND key < $2 ORDER BY key`, query)
	require.Len(t, args, 2)
	assert.Equal(t, []byte("queue:"), args[0])
	assert.Equal(t, []byte("queue;"), args[1])

	query, args = prefixQuery("kv", []byte{0xff, 0xff})
	assert.Equal(t, `SELECT key, value FROM kv WHERE key >= $1 ORDER BY key`, query)
	assert.Len(t, args, 1)
}

func TestPostgresRejectsBadTableName(t *testing.T) {
	_, err := NewPostgresProvider(PostgresOptions{DSN: "postgres://localhost/none", Table: "kv; DROP TABLE x"})
	assert.Error(t, err)
}
