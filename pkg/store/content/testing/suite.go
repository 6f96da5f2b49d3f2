package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for ContentStore implementations.
// It tests the interface contract, not implementation details, so the same
// suite runs against the filesystem, memory and S3 stores.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.ContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) content.ContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("ListOperations", suite.RunListTests)
}

func testContext() context.Context {
	return context.Background()
}

// ============================================================================
// Helpers
// ============================================================================

func mustPut(t *testing.T, store content.ContentStore, path string, data []byte) {
	t.Helper()
	err := store.Put(testContext(), path, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err, "Put(%s) failed", path)
}

func mustRead(t *testing.T, store content.ContentStore, path string) []byte {
	t.Helper()
	rc, _, err := store.Open(testContext(), path)
	require.NoError(t, err, "Open(%s) failed", path)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

// AssertErrorIs fails unless err wraps target.
func AssertErrorIs(t *testing.T, target, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, target), "expected %v, got %v", target, err)
}
