package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes Put and Remove tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Put_Basic", suite.testPutBasic)
	t.Run("Put_Overwrite", suite.testPutOverwrite)
	t.Run("Put_ShortReader", suite.testPutShortReader)
	t.Run("Put_ReadsExactlySize", suite.testPutReadsExactlySize)
	t.Run("Remove_Success", suite.testRemoveSuccess)
	t.Run("Remove_NotFound", suite.testRemoveNotFound)
}

func (suite *StoreTestSuite) testPutBasic(t *testing.T) {
	store := suite.NewStore(t)

	mustPut(t, store, "x/y/report.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, []byte("%PDF-1.4"), mustRead(t, store, "x/y/report.pdf"))
}

func (suite *StoreTestSuite) testPutOverwrite(t *testing.T) {
	store := suite.NewStore(t)

	mustPut(t, store, "a.txt", []byte("first version, longer"))
	mustPut(t, store, "a.txt", []byte("second"))

	assert.Equal(t, []byte("second"), mustRead(t, store, "a.txt"))
}

func (suite *StoreTestSuite) testPutShortReader(t *testing.T) {
	store := suite.NewStore(t)

	err := store.Put(testContext(), "short.txt", bytes.NewReader([]byte("abc")), 10)
	AssertErrorIs(t, io.ErrUnexpectedEOF, err)

	_, err = store.Stat(testContext(), "short.txt")
	AssertErrorIs(t, content.ErrNotFound, err)
}

func (suite *StoreTestSuite) testPutReadsExactlySize(t *testing.T) {
	store := suite.NewStore(t)
	r := bytes.NewReader([]byte("helloTRAILING"))

	require.NoError(t, store.Put(testContext(), "h.txt", r, 5))

	assert.Equal(t, []byte("hello"), mustRead(t, store, "h.txt"))
	assert.Equal(t, 8, r.Len(), "Put must not consume past size")
}

func (suite *StoreTestSuite) testRemoveSuccess(t *testing.T) {
	store := suite.NewStore(t)
	mustPut(t, store, "d/gone.txt", []byte("bye"))

	require.NoError(t, store.Remove(testContext(), "d/gone.txt"))

	_, err := store.Stat(testContext(), "d/gone.txt")
	AssertErrorIs(t, content.ErrNotFound, err)
}

func (suite *StoreTestSuite) testRemoveNotFound(t *testing.T) {
	store := suite.NewStore(t)

	err := store.Remove(testContext(), "never/there.txt")

	AssertErrorIs(t, content.ErrNotFound, err)
}
