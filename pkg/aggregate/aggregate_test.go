package aggregate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func static(names ...string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) { return names, nil }
}

func TestGroup_CaseInsensitiveOrder(t *testing.T) {
	got := Group(".pdf", []string{"b.pdf", "A.pdf", "a.pdf", "C.pdf"})

	assert.Equal(t, []Entry{
		{".pdf", "A.pdf"},
		{".pdf", "a.pdf"},
		{".pdf", "b.pdf"},
		{".pdf", "C.pdf"},
	}, got)
}

func TestMerge_KeepsPriorityAndSkipsFailures(t *testing.T) {
	var failed []string
	sources := []Source{
		{Extension: ".c", List: static("z.c", "m.c")},
		{Extension: ".pdf", List: static("B.pdf", "a.pdf")},
		{Extension: ".txt", List: func(context.Context) ([]string, error) { return nil, errors.New("down") }},
		{Extension: ".zip", List: static("x.zip")},
	}

	got := Merge(context.Background(), sources, func(ext string, err error) {
		failed = append(failed, ext)
	})

	assert.Equal(t, []Entry{
		{".c", "m.c"},
		{".c", "z.c"},
		{".pdf", "a.pdf"},
		{".pdf", "B.pdf"},
		{".zip", "x.zip"},
	}, got)
	assert.Equal(t, []string{".txt"}, failed)
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(context.Background(), []Source{{Extension: ".c", List: static()}}, nil))
}
