package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/kpibench/value"
)

func TestInsertGet(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert("a", value.New([]float64{1, 2})))
	v, ok := tbl.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v.Len())

	_, ok = tbl.Get("missing")
	require.False(t, ok)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert("a", value.Scalar(1)))
	err := tbl.Insert("a", value.Scalar(2))
	require.Error(t, err)
	var dupErr *DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
}

func TestKeysPreserveInsertionOrder(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert("c", value.Scalar(1)))
	require.NoError(t, tbl.Insert("a", value.Scalar(2)))
	require.NoError(t, tbl.Insert("b", value.Scalar(3)))
	require.Equal(t, []string{"c", "a", "b"}, tbl.Keys())
}

func TestEvict(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert("a", value.Scalar(1)))
	require.NoError(t, tbl.Insert("b", value.Scalar(2)))
	require.NoError(t, tbl.Insert("c", value.Scalar(3)))

	tbl.Evict([]string{"b"})
	require.Equal(t, 2, tbl.Len())
	require.Equal(t, []string{"a", "c"}, tbl.Keys())
	_, ok := tbl.Get("b")
	require.False(t, ok)

	// Evicting an already-absent key is a no-op, not an error.
	tbl.Evict([]string{"b", "z"})
	require.Equal(t, 2, tbl.Len())
}
