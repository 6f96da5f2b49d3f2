// Package node defines the messages exchanged between the gateway and the
// storage nodes.
//
// Requests are single lines:
//
//	STORE|<relDir>|<name>|      followed by a "<size>" line and the payload
//	FETCH|<relPath>
//	DELETE|<relPath>
//	LIST|<relDir>
//	TAR|<ext>
//
// Replies start with OK or ERR|<reason>. A FETCH or TAR success carries
// OK|<name>|<size> and then exactly size payload bytes; a LIST success is OK,
// zero or more NAME|<name> lines and END. "." names the root directory.
package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/shardgate/internal/protocol/wire"
)

// Request verbs.
const (
	VerbStore  = "STORE"
	VerbFetch  = "FETCH"
	VerbDelete = "DELETE"
	VerbList   = "LIST"
	VerbTar    = "TAR"
)

// Reply tokens.
const (
	ReplyOK   = "OK"
	ReplyErr  = "ERR"
	ReplyName = "NAME"
	ReplyEnd  = "END"
)

// Failure reasons carried by ERR replies.
const (
	ReasonNoFile  = "nofile"
	ReasonUnlink  = "unlink"
	ReasonEmpty   = "empty"
	ReasonUnknown = "unknown"
	ReasonBadPath = "bad_path"
	ReasonStore   = "store"
	ReasonTar     = "tar"
)

// RootDir is the relative directory naming the storage root.
const RootDir = "."

// ErrUnknownVerb is returned by ParseRequest for lines it does not recognize.
var ErrUnknownVerb = errors.New("unknown request")

// Request is one decoded node request.
type Request interface {
	Verb() string
}

// StoreRequest announces an upload. The size line and payload follow.
type StoreRequest struct {
	Dir  string
	Name string
}

// FetchRequest asks for a file's bytes.
type FetchRequest struct {
	Path string
}

// DeleteRequest asks for a file to be unlinked.
type DeleteRequest struct {
	Path string
}

// ListRequest asks for the names of files directly under a directory.
type ListRequest struct {
	Dir string
}

// TarRequest asks for a bundle of every file of an extension.
type TarRequest struct {
	Extension string
}

func (*StoreRequest) Verb() string  { return VerbStore }
func (*FetchRequest) Verb() string  { return VerbFetch }
func (*DeleteRequest) Verb() string { return VerbDelete }
func (*ListRequest) Verb() string   { return VerbList }
func (*TarRequest) Verb() string    { return VerbTar }

// ParseRequest decodes one request line. Single-argument verbs take the
// whole remainder of the line as their argument.
func ParseRequest(line string) (Request, error) {
	verb, rest, _ := strings.Cut(line, wire.Separator)

	switch verb {
	case VerbStore:
		fields := wire.Split(rest)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, line)
		}
		return &StoreRequest{Dir: orRoot(fields[0]), Name: fields[1]}, nil
	case VerbFetch:
		return &FetchRequest{Path: rest}, nil
	case VerbDelete:
		return &DeleteRequest{Path: rest}, nil
	case VerbList:
		return &ListRequest{Dir: orRoot(rest)}, nil
	case VerbTar:
		return &TarRequest{Extension: rest}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, line)
	}
}

// Line encodes r as a request line body. A StoreRequest keeps the trailing
// separator the nodes have always accepted.
func Line(r Request) string {
	switch req := r.(type) {
	case *StoreRequest:
		return wire.Join(VerbStore, orRoot(req.Dir), req.Name, "")
	case *FetchRequest:
		return wire.Join(VerbFetch, req.Path)
	case *DeleteRequest:
		return wire.Join(VerbDelete, req.Path)
	case *ListRequest:
		return wire.Join(VerbList, orRoot(req.Dir))
	case *TarRequest:
		return wire.Join(VerbTar, req.Extension)
	default:
		return ""
	}
}

// Reply is a decoded status line.
type Reply struct {
	OK     bool
	Reason string

	// Args holds the fields after OK, e.g. name and size for FETCH and TAR.
	Args []string
}

// ParseReply decodes a status line.
func ParseReply(line string) (Reply, error) {
	fields := wire.Split(line)
	switch fields[0] {
	case ReplyOK:
		return Reply{OK: true, Args: fields[1:]}, nil
	case ReplyErr:
		reason := ""
		if len(fields) > 1 {
			reason = strings.Join(fields[1:], wire.Separator)
		}
		return Reply{Reason: reason}, nil
	default:
		return Reply{}, fmt.Errorf("unexpected reply %q", line)
	}
}

// FileHeader extracts name and size from an OK|<name>|<size> reply.
func (r Reply) FileHeader() (string, int64, error) {
	if len(r.Args) < 2 {
		return "", 0, fmt.Errorf("reply lacks name and size: %v", r.Args)
	}
	size, err := wire.ParseSize(r.Args[1])
	if err != nil {
		return "", 0, err
	}
	return r.Args[0], size, nil
}

func orRoot(dir string) string {
	if dir == "" {
		return RootDir
	}
	return dir
}
