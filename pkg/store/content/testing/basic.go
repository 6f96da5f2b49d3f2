package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes the read-side tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("Open_NotFound", suite.testOpenNotFound)
	t.Run("Open_Success", suite.testOpenSuccess)
	t.Run("Open_Empty", suite.testOpenEmpty)
	t.Run("Open_Large", suite.testOpenLarge)
	t.Run("Stat_NotFound", suite.testStatNotFound)
	t.Run("Stat_Success", suite.testStatSuccess)
	t.Run("Open_EscapingPath", suite.testOpenEscapingPath)
}

// ============================================================================
// Open Tests
// ============================================================================

func (suite *StoreTestSuite) testOpenNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, _, err := store.Open(testContext(), "missing.pdf")

	AssertErrorIs(t, content.ErrNotFound, err)
}

func (suite *StoreTestSuite) testOpenSuccess(t *testing.T) {
	store := suite.NewStore(t)
	data := []byte("Hello, World!")

	mustPut(t, store, "docs/hello.txt", data)

	rc, info, err := store.Open(testContext(), "docs/hello.txt")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "hello.txt", info.Name)
	assert.Equal(t, "docs/hello.txt", info.Path)
	assert.Equal(t, int64(len(data)), info.Size)
}

func (suite *StoreTestSuite) testOpenEmpty(t *testing.T) {
	store := suite.NewStore(t)

	mustPut(t, store, "empty.txt", nil)

	assert.Empty(t, mustRead(t, store, "empty.txt"))
}

func (suite *StoreTestSuite) testOpenLarge(t *testing.T) {
	store := suite.NewStore(t)
	data := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)

	mustPut(t, store, "big.zip", data)

	assert.Equal(t, data, mustRead(t, store, "big.zip"))
}

func (suite *StoreTestSuite) testOpenEscapingPath(t *testing.T) {
	store := suite.NewStore(t)

	_, _, err := store.Open(testContext(), "../outside.txt")

	AssertErrorIs(t, content.ErrInvalidPath, err)
}

// ============================================================================
// Stat Tests
// ============================================================================

func (suite *StoreTestSuite) testStatNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Stat(testContext(), "nope/missing.txt")

	AssertErrorIs(t, content.ErrNotFound, err)
}

func (suite *StoreTestSuite) testStatSuccess(t *testing.T) {
	store := suite.NewStore(t)

	mustPut(t, store, "a/b/c.pdf", []byte("pdfdata"))

	info, err := store.Stat(testContext(), "a/b/c.pdf")
	require.NoError(t, err)
	assert.Equal(t, "c.pdf", info.Name)
	assert.Equal(t, "a/b/c.pdf", info.Path)
	assert.Equal(t, int64(7), info.Size)
}
