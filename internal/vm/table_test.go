package vm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func strKey(s string) Value {
	return Obj(&String{Chars: s, Hash: fnv1a(s)})
}

func TestTableSetGetDelete(t *testing.T) {
	tbl := NewTable()
	k1, k2 := strKey("alpha"), strKey("beta")

	require.True(t, tbl.Set(k1, Number(1)))
	require.False(t, tbl.Set(k1, Number(2))) // overwrite, not new
	v, ok := tbl.Get(k1)
	require.True(t, ok)
	require.Equal(t, 2.0, v.AsNumber())

	_, ok = tbl.Get(k2)
	require.False(t, ok)

	require.True(t, tbl.Delete(k1))
	_, ok = tbl.Get(k1)
	require.False(t, ok)
	require.False(t, tbl.Delete(k1)) // already gone
}

func TestTableTombstoneTraversal(t *testing.T) {
	tbl := NewTable()
	keys := make([]Value, 0, 20)
	for i := 0; i < 20; i++ {
		k := strKey(fmt.Sprintf("k%d", i))
		keys = append(keys, k)
		tbl.Set(k, Number(float64(i)))
	}
	// delete every other entry, leaving tombstones the remaining probes must
	// traverse through.
	for i := 0; i < 20; i += 2 {
		require.True(t, tbl.Delete(keys[i]))
	}
	for i := 1; i < 20; i += 2 {
		v, ok := tbl.Get(keys[i])
		require.True(t, ok)
		require.Equal(t, float64(i), v.AsNumber())
	}
}

func TestTableLoadFactorStaysBelowMax(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 500; i++ {
		tbl.Set(strKey(fmt.Sprintf("key-%d", i)), Number(float64(i)))
		require.Less(t, float64(tbl.count)/float64(len(tbl.entries)), tableMaxLoad+1e-9)
	}
}

func TestTableAddAll(t *testing.T) {
	src := NewTable()
	src.Set(strKey("a"), Number(1))
	src.Set(strKey("b"), Number(2))

	dst := NewTable()
	dst.Set(strKey("b"), Number(99))
	dst.AddAll(src)

	v, ok := dst.Get(strKey("a"))
	require.True(t, ok)
	require.Equal(t, 1.0, v.AsNumber())
	v, ok = dst.Get(strKey("b"))
	require.True(t, ok)
	require.Equal(t, 2.0, v.AsNumber()) // overwritten by src
}

func TestTableFindString(t *testing.T) {
	tbl := NewTable()
	s := &String{Chars: "hello", Hash: fnv1a("hello")}
	tbl.Set(Obj(s), True)

	found := tbl.FindString("hello", fnv1a("hello"))
	require.Same(t, s, found)

	require.Nil(t, tbl.FindString("world", fnv1a("world")))
}
