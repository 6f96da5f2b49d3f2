package gateway

import (
	"fmt"
	"io"

	"github.com/marmos91/shardgate/internal/protocol/wire"
)

// Line tags.
const (
	ReplyOK  = "OK"
	ReplyErr = "ERR"

	TagFileMeta     = "FILEMETA"
	TagFileResp     = "FILERESP"
	TagFileNotFound = "FILENOTFOUND"
	TagDone         = "DONE"
	TagRemoveOK     = "REMOK"
	TagRemoveErr    = "REMERR"
	TagListBegin    = "LISTBEGIN"
	TagName         = "NAME"
	TagListEnd      = "LISTEND"
)

// WriteOK ends a successful UPLOADF.
func WriteOK(w io.Writer) error {
	return wire.WriteLine(w, ReplyOK)
}

// WriteError sends ERR|<reason>.
func WriteError(w io.Writer, reason string) error {
	return wire.WriteLine(w, ReplyErr, reason)
}

// WriteFileResponse announces size payload bytes for name.
func WriteFileResponse(w io.Writer, name string, size int64) error {
	return wire.WriteLine(w, TagFileResp, name, wire.FormatSize(size))
}

func WriteFileNotFound(w io.Writer, path string) error {
	return wire.WriteLine(w, TagFileNotFound, path)
}

func WriteDone(w io.Writer) error {
	return wire.WriteLine(w, TagDone)
}

func WriteRemoveOK(w io.Writer, path string) error {
	return wire.WriteLine(w, TagRemoveOK, path)
}

func WriteRemoveError(w io.Writer, path, reason string) error {
	return wire.WriteLine(w, TagRemoveErr, path, reason)
}

// WriteListing sends LISTBEGIN, one NAME|<ext>|<name> per entry and LISTEND.
func WriteListing(w io.Writer, entries []ListEntry) error {
	if err := wire.WriteLine(w, TagListBegin); err != nil {
		return err
	}
	for _, e := range entries {
		if err := wire.WriteLine(w, TagName, e.Extension, e.Name); err != nil {
			return err
		}
	}
	return wire.WriteLine(w, TagListEnd)
}

// WriteFileMeta announces an upload payload; used by clients.
func WriteFileMeta(w io.Writer, name string, size int64) error {
	return wire.WriteLine(w, TagFileMeta, name, wire.FormatSize(size))
}

// ListEntry is one DISP result line.
type ListEntry struct {
	Extension string
	Name      string
}

// ParseFileResponse decodes FILERESP|<name>|<size>.
func ParseFileResponse(line string) (string, int64, error) {
	fields := wire.Split(line)
	if len(fields) != 3 || fields[0] != TagFileResp {
		return "", 0, fmt.Errorf("unexpected file response %q", line)
	}
	size, err := wire.ParseSize(fields[2])
	if err != nil {
		return "", 0, err
	}
	return fields[1], size, nil
}

// ParseListName decodes NAME|<ext>|<name>. The name keeps any separators.
func ParseListName(line string) (ListEntry, error) {
	fields := wire.Split(line)
	if len(fields) < 3 || fields[0] != TagName {
		return ListEntry{}, fmt.Errorf("unexpected listing line %q", line)
	}
	return ListEntry{Extension: fields[1], Name: wire.Join(fields[2:]...)}, nil
}
