package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBolt(t *testing.T) *BoltProvider {
	t.Helper()
	p, err := NewBoltProvider(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestBoltProviderBasicOps(t *testing.T) {
	p := newBolt(t)

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

func TestBoltIteratePrefixOrdered(t *testing.T) {
	p := newBolt(t)

	require.NoError(t, p.Put([]byte("a:2"), []byte("2")))
	require.NoError(t, p.Put([]byte("a:1"), []byte("1")))
	require.NoError(t, p.Put([]byte("b:1"), []byte("x")))
	require.NoError(t, p.Put([]byte("0"), []byte("y")))

	var got []string
	err := p.IteratePrefix([]byte("a:"), func(key, value []byte) bool {
		got = append(got, string(key)+"="+string(value))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1=1", "a:2=2"}, got)
}

func TestBoltWithBatch(t *testing.T) {
	p := newBolt(t)
	tm := NewDBTxManager(p)

	err := tm.WithBatch(func(batch DatabaseBatch) error {
		batch.Put([]byte("x"), []byte("1"))
		batch.Put([]byte("y"), []byte("2"))
		batch.Delete([]byte("y"))
		return nil
	})
	require.NoError(t, err)
	v, _ := p.Get([]byte("x"))
	assert.Equal(t, []byte("1"), v)
	ok, _ := p.Has([]byte("y"))
	assert.False(t, ok)

	boom := errors.New("boom")
	err = tm.WithBatch(func(batch DatabaseBatch) error {
		batch.Put([]byte("z"), []byte("3"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	ok, _ = p.Has([]byte("z"))
	assert.False(t, ok)
}

func TestBoltReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	p, err := NewBoltProvider(dir)
	require.NoError(t, err)
	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())

	p, err = NewBoltProvider(dir)
	require.NoError(t, err)
	defer p.Close()
	v, err := p.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
