package testing

import (
	"errors"
	"sort"
	"testing"

	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests executes List and Walk tests.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("List_MissingDir", suite.testListMissingDir)
	t.Run("List_OneLevel", suite.testListOneLevel)
	t.Run("List_Root", suite.testListRoot)
	t.Run("Walk_Recursive", suite.testWalkRecursive)
	t.Run("Walk_StopsOnError", suite.testWalkStopsOnError)
}

func names(infos []content.FileInfo) []string {
	out := make([]string, 0, len(infos))
	for _, fi := range infos {
		out = append(out, fi.Name)
	}
	sort.Strings(out)
	return out
}

func (suite *StoreTestSuite) testListMissingDir(t *testing.T) {
	store := suite.NewStore(t)

	infos, err := store.List(testContext(), "does/not/exist")

	require.NoError(t, err)
	assert.Empty(t, infos)
}

func (suite *StoreTestSuite) testListOneLevel(t *testing.T) {
	store := suite.NewStore(t)
	mustPut(t, store, "dir/a.pdf", []byte("a"))
	mustPut(t, store, "dir/b.pdf", []byte("bb"))
	mustPut(t, store, "dir/sub/c.pdf", []byte("ccc"))
	mustPut(t, store, "other/d.pdf", []byte("d"))

	infos, err := store.List(testContext(), "dir")

	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(infos))
}

func (suite *StoreTestSuite) testListRoot(t *testing.T) {
	store := suite.NewStore(t)
	mustPut(t, store, "top.txt", []byte("t"))
	mustPut(t, store, "nested/inner.txt", []byte("i"))

	infos, err := store.List(testContext(), ".")

	require.NoError(t, err)
	assert.Equal(t, []string{"top.txt"}, names(infos))
}

func (suite *StoreTestSuite) testWalkRecursive(t *testing.T) {
	store := suite.NewStore(t)
	mustPut(t, store, "a.zip", []byte("1"))
	mustPut(t, store, "x/b.zip", []byte("2"))
	mustPut(t, store, "x/y/c.zip", []byte("3"))

	var paths []string
	err := store.Walk(testContext(), func(fi content.FileInfo) error {
		paths = append(paths, fi.Path)
		return nil
	})

	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{"a.zip", "x/b.zip", "x/y/c.zip"}, paths)
}

func (suite *StoreTestSuite) testWalkStopsOnError(t *testing.T) {
	store := suite.NewStore(t)
	mustPut(t, store, "1.txt", []byte("1"))
	mustPut(t, store, "2.txt", []byte("2"))

	stop := errors.New("stop")
	calls := 0
	err := store.Walk(testContext(), func(content.FileInfo) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
