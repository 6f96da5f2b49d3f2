package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line string
		want Request
	}{
		{"STORE|docs|a.pdf|", &StoreRequest{Dir: "docs", Name: "a.pdf"}},
		{"STORE||a.pdf|", &StoreRequest{Dir: ".", Name: "a.pdf"}},
		{"STORE|.|a.pdf", &StoreRequest{Dir: ".", Name: "a.pdf"}},
		{"FETCH|docs/a.pdf", &FetchRequest{Path: "docs/a.pdf"}},
		{"DELETE|x|y.pdf", &DeleteRequest{Path: "x|y.pdf"}},
		{"LIST|", &ListRequest{Dir: "."}},
		{"LIST|a/b", &ListRequest{Dir: "a/b"}},
		{"TAR|.pdf", &TarRequest{Extension: ".pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequest_Unknown(t *testing.T) {
	for _, line := range []string{"", "HELLO", "store|a|b|", "STORE|onlydir"} {
		_, err := ParseRequest(line)
		assert.ErrorIs(t, err, ErrUnknownVerb, line)
	}
}

func TestLine_RoundTripsThroughParse(t *testing.T) {
	reqs := []Request{
		&StoreRequest{Dir: ".", Name: "r.txt"},
		&FetchRequest{Path: "a/r.txt"},
		&DeleteRequest{Path: "r.txt"},
		&ListRequest{Dir: "a"},
		&TarRequest{Extension: ".txt"},
	}
	for _, r := range reqs {
		got, err := ParseRequest(Line(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	assert.Equal(t, "STORE|.|r.txt|", Line(&StoreRequest{Name: "r.txt"}))
}

func TestParseReply(t *testing.T) {
	r, err := ParseReply("OK|pdf.tar|1024")
	require.NoError(t, err)
	assert.True(t, r.OK)
	name, size, err := r.FileHeader()
	require.NoError(t, err)
	assert.Equal(t, "pdf.tar", name)
	assert.Equal(t, int64(1024), size)

	r, err = ParseReply("ERR|nofile")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, "nofile", r.Reason)

	_, err = ParseReply("WHAT")
	assert.Error(t, err)

	r, err = ParseReply("OK")
	require.NoError(t, err)
	_, _, err = r.FileHeader()
	assert.Error(t, err)
}
