package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDBProviderBasicOps(t *testing.T) {
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	defer p.Close()

	v, err := p.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	ok, err := p.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err = p.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, p.Delete([]byte("k")))
	ok, err = p.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLevelDBIteratePrefixOrdered(t *testing.T) {
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Put([]byte("a:2"), []byte("2")))
	require.NoError(t, p.Put([]byte("a:1"), []byte("1")))
	require.NoError(t, p.Put([]byte("b:1"), []byte("x")))

	var got []string
	err = p.IteratePrefix([]byte("a:"), func(key, value []byte) bool {
		got = append(got, string(key)+"="+string(value))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1=1", "a:2=2"}, got)

	got = got[:0]
	err = p.IteratePrefix([]byte("a:"), func(key, value []byte) bool {
		got = append(got, string(key))
		return false
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWithBatch(t *testing.T) {
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	defer p.Close()
	tm := NewDBTxManager(p)

	err = tm.WithBatch(func(batch DatabaseBatch) error {
		batch.Put([]byte("x"), []byte("1"))
		batch.Put([]byte("y"), []byte("2"))
		return nil
	})
	require.NoError(t, err)
	v, _ := p.Get([]byte("y"))
	assert.Equal(t, []byte("2"), v)

	boom := errors.New("boom")
	err = tm.WithBatch(func(batch DatabaseBatch) error {
		batch.Delete([]byte("x"))
		batch.Put([]byte("z"), []byte("3"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// nothing from the aborted batch is visible
	v, _ = p.Get([]byte("x"))
	assert.Equal(t, []byte("1"), v)
	ok, _ := p.Has([]byte("z"))
	assert.False(t, ok)
}

func TestLevelDBCloseTwice(t *testing.T) {
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
