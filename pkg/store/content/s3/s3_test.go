package s3

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"HeadNotFound", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"Wrapped", fmt.Errorf("op: %w", &smithy.GenericAPIError{Code: "NoSuchKey"}), true},
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"Plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestObjectKey(t *testing.T) {
	s := &S3ContentStore{keyPrefix: "nodes/pdf/"}

	key, err := s.objectKey("a/b/../c.pdf")
	require.NoError(t, err)
	assert.Equal(t, "nodes/pdf/a/c.pdf", key)

	_, err = s.objectKey(".")
	assert.ErrorIs(t, err, content.ErrInvalidPath)

	_, err = s.objectKey("../x.pdf")
	assert.ErrorIs(t, err, content.ErrInvalidPath)

	prefix, err := s.dirPrefix(".")
	require.NoError(t, err)
	assert.Equal(t, "nodes/pdf/", prefix)

	prefix, err = s.dirPrefix("docs")
	require.NoError(t, err)
	assert.Equal(t, "nodes/pdf/docs/", prefix)

	assert.Equal(t, "docs/x.pdf", s.relPath("nodes/pdf/docs/x.pdf"))
}
