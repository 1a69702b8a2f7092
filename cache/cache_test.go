package cache_test

import (
	"testing"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/cache"
	"github.com/stretchr/testify/require"
)

func testIdentity() xfer.Identity {
	return xfer.Identity{Proto: "ftp", Host: "example.com", Port: "21", User: "anon", Home: "/home/anon"}
}

func TestStoreAndLookup(t *testing.T) {
	c := cache.New(1<<20, time.Minute)
	id := testIdentity()
	key := id.CacheKey("/pub", xfer.List)

	c.Store(key, []byte("listing"), nil, 0)

	e, ok := c.Lookup(key)
	require.True(t, ok)
	require.False(t, e.IsError())
	require.Equal(t, "listing", string(e.Blob))
}

func TestLookupMiss(t *testing.T) {
	c := cache.New(1<<20, time.Minute)
	_, ok := c.Lookup(testIdentity().CacheKey("/nope", xfer.List))
	require.False(t, ok)
}

func TestStoreErrorEntry(t *testing.T) {
	c := cache.New(1<<20, time.Minute)
	key := testIdentity().CacheKey("/gone", xfer.List)
	c.StoreError(key, xfer.NoFile, "no such file", 0)

	e, ok := c.Lookup(key)
	require.True(t, ok)
	require.True(t, e.IsError())
	require.Equal(t, xfer.NoFile, e.ErrKind)
}

func TestEntryExpiresByTTL(t *testing.T) {
	c := cache.New(1<<20, 0)
	key := testIdentity().CacheKey("/pub", xfer.List)
	c.Store(key, []byte("x"), nil, time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := c.Lookup(key)
		return !ok
	}, time.Second, time.Millisecond)
}

func TestFileChangedInvalidatesFileAndParentListing(t *testing.T) {
	c := cache.New(1<<20, time.Minute)
	id := testIdentity()
	fileKey := id.CacheKey("/pub/readme.txt", xfer.Retrieve)
	dirKey := id.CacheKey("/pub", xfer.List)
	otherKey := id.CacheKey("/other", xfer.List)

	c.Store(fileKey, []byte("a"), nil, 0)
	c.Store(dirKey, []byte("b"), nil, 0)
	c.Store(otherKey, []byte("c"), nil, 0)

	c.FileChanged(id, "/pub/readme.txt")

	_, ok := c.Lookup(fileKey)
	require.False(t, ok)
	_, ok = c.Lookup(dirKey)
	require.False(t, ok)
	_, ok = c.Lookup(otherKey)
	require.True(t, ok)
}

func TestTreeChangedInvalidatesSubtree(t *testing.T) {
	c := cache.New(1<<20, time.Minute)
	id := testIdentity()
	inTree := id.CacheKey("/pub/sub/file", xfer.Retrieve)
	root := id.CacheKey("/pub", xfer.List)
	outside := id.CacheKey("/other/file", xfer.Retrieve)

	c.Store(inTree, []byte("a"), nil, 0)
	c.Store(root, []byte("b"), nil, 0)
	c.Store(outside, []byte("c"), nil, 0)

	c.TreeChanged(id, "/pub")

	_, ok := c.Lookup(inTree)
	require.False(t, ok)
	_, ok = c.Lookup(root)
	require.False(t, ok)
	_, ok = c.Lookup(outside)
	require.True(t, ok)
}

func TestInvalidationIsScopedToSite(t *testing.T) {
	c := cache.New(1<<20, time.Minute)
	a := xfer.Identity{Proto: "ftp", Host: "a.example.com", Port: "21", User: "anon"}
	b := xfer.Identity{Proto: "ftp", Host: "b.example.com", Port: "21", User: "anon"}

	keyA := a.CacheKey("/pub", xfer.List)
	keyB := b.CacheKey("/pub", xfer.List)
	c.Store(keyA, []byte("a"), nil, 0)
	c.Store(keyB, []byte("b"), nil, 0)

	c.TreeChanged(a, "/pub")

	_, ok := c.Lookup(keyA)
	require.False(t, ok)
	_, ok = c.Lookup(keyB)
	require.True(t, ok)
}

func TestByteBudgetEvictsOldest(t *testing.T) {
	id := testIdentity()
	c := cache.New(200, time.Minute)

	for i := 0; i < 10; i++ {
		key := id.CacheKey("/file", xfer.Retrieve)
		key.Mode = xfer.OpenMode(i)
		c.Store(key, make([]byte, 50), nil, 0)
	}

	require.LessOrEqual(t, c.Len(), 2)
}

func TestExpireHelperSweeps(t *testing.T) {
	c := cache.New(1<<20, 0)
	id := testIdentity()
	key := id.CacheKey("/pub", xfer.List)
	c.Store(key, []byte("x"), nil, time.Millisecond)

	helper := cache.NewExpireHelper(c)
	require.Eventually(t, func() bool {
		helper.Do()
		return c.Len() == 0
	}, time.Second, 2*time.Millisecond)
}
