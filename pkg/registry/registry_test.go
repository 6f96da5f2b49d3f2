package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(
		LocalClass{Extension: ".c", BundleName: "cfiles.tar"},
		Endpoint{Extension: ".pdf", Host: "127.0.0.1", Port: 5002, BundleName: "pdfs.tar"},
		Endpoint{Extension: "TXT", Host: "127.0.0.1", Port: 5003, BundleName: "textiles.tar"},
		Endpoint{Extension: ".zip", Host: "10.0.0.4", Port: 5004},
	)
	require.NoError(t, err)
	return reg
}

func TestClassify(t *testing.T) {
	reg := newTestRegistry(t)

	assert.Equal(t, ClassLocal, reg.Classify(".c"))
	assert.Equal(t, ClassLocal, reg.Classify(".C"))
	assert.Equal(t, ClassRemote, reg.Classify(".pdf"))
	assert.Equal(t, ClassRemote, reg.Classify(".Txt"))
	assert.Equal(t, ClassUnsupported, reg.Classify(".doc"))
	assert.Equal(t, ClassUnsupported, reg.Classify(""))
	assert.Equal(t, "remote", ClassRemote.String())
}

func TestLookupAndOrder(t *testing.T) {
	reg := newTestRegistry(t)

	ep, ok := reg.Lookup(".TXT")
	require.True(t, ok)
	assert.Equal(t, ".txt", ep.Extension)
	assert.Equal(t, "127.0.0.1:5003", ep.Address())

	_, ok = reg.Lookup(".c")
	assert.False(t, ok)

	assert.Equal(t, []string{".c", ".pdf", ".txt", ".zip"}, reg.Extensions())

	eps := reg.Endpoints()
	require.Len(t, eps, 3)
	eps[0].Host = "mutated"
	again, _ := reg.Lookup(".pdf")
	assert.Equal(t, "127.0.0.1", again.Host)
}

func TestBundleName(t *testing.T) {
	reg := newTestRegistry(t)

	for ext, want := range map[string]string{
		".c":   "cfiles.tar",
		".pdf": "pdfs.tar",
		".txt": "textiles.tar",
		".zip": "zips.tar",
	} {
		got, ok := reg.BundleName(ext)
		require.True(t, ok, ext)
		assert.Equal(t, want, got, ext)
	}

	_, ok := reg.BundleName(".exe")
	assert.False(t, ok)
}

func TestNew_Rejects(t *testing.T) {
	local := LocalClass{Extension: ".c"}

	_, err := New(LocalClass{})
	assert.Error(t, err)

	_, err = New(local, Endpoint{Extension: ".c", Host: "h", Port: 1})
	assert.Error(t, err)

	_, err = New(local,
		Endpoint{Extension: ".pdf", Host: "h", Port: 1},
		Endpoint{Extension: "PDF", Host: "h", Port: 2},
	)
	assert.Error(t, err)

	_, err = New(local, Endpoint{Extension: ".pdf", Port: 1})
	assert.Error(t, err)

	_, err = New(local, Endpoint{Extension: ".pdf", Host: "h", Port: 70000})
	assert.Error(t, err)
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, ".pdf", NormalizeExt("PDF"))
	assert.Equal(t, ".c", NormalizeExt(" .C "))
	assert.Equal(t, "", NormalizeExt("."))
	assert.Equal(t, "", NormalizeExt(""))
}
