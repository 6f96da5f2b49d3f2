// Package gateway defines the client-facing protocol of the front-end.
//
// Commands are single '|'-separated lines:
//
//	UPLOADF|<N>|<dest>          then N x (FILEMETA|<name>|<size> + payload)
//	DOWNLF|<N>|<p1>[|<p2>]
//	REMOVEF|<N>|<p1>[|<p2>]
//	DOWNTAR|<ext>
//	DISP|<path>
//
// ParseCommand turns a line into a typed command or a *ProtocolError whose
// reply is sent back while the connection stays open.
package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/shardgate/internal/protocol/wire"
)

// Command verbs.
const (
	VerbUpload      = "UPLOADF"
	VerbDownload    = "DOWNLF"
	VerbRemove      = "REMOVEF"
	VerbDownloadTar = "DOWNTAR"
	VerbList        = "DISP"
)

// Per-command file count limits.
const (
	MaxUploadFiles   = 3
	MaxDownloadFiles = 2
	MaxRemoveFiles   = 2
)

// Reasons carried by ERR replies.
const (
	ReasonUnknownCmd      = "unknown_cmd"
	ReasonLineTooLong     = "line_too_long"
	ReasonBadUpload       = "bad upload header"
	ReasonBadDownload     = "bad downlf header"
	ReasonBadRemove       = "bad removef header"
	ReasonMissingType     = "missing_type"
	ReasonUnsupportedType = "unsupported_type"
	ReasonTarBackend      = "tar_backend"
	ReasonBadPath         = "bad_path"
)

// REMERR reasons other than OS error text.
const (
	RemoveNotFound    = "NOT FOUND"
	RemoveUnsupported = "unsupported"
)

// NoFilesReason is the DOWNTAR reason for a local class with no match,
// e.g. "no_c_files" for ".c".
func NoFilesReason(ext string) string {
	return "no_" + strings.TrimPrefix(ext, ".") + "_files"
}

// ProtocolError is a request-level failure answered with ERR|<Reason>.
// The session survives it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Fields returns the reply line fields.
func (e *ProtocolError) Fields() []string {
	return []string{ReplyErr, e.Reason}
}

// AsProtocolError reports whether err carries a *ProtocolError.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func protocolErr(reason string) *ProtocolError {
	return &ProtocolError{Reason: reason}
}

// Command is one decoded client command.
type Command interface {
	Verb() string
}

// UploadCommand announces Count files for the virtual directory Dest.
type UploadCommand struct {
	Count int
	Dest  string
}

// DownloadCommand requests the files at Paths.
type DownloadCommand struct {
	Paths []string
}

// RemoveCommand deletes the files at Paths.
type RemoveCommand struct {
	Paths []string
}

// DownloadTarCommand requests the bundle of an extension class. Extension
// is the selector exactly as sent.
type DownloadTarCommand struct {
	Extension string
}

// ListCommand lists the virtual directory Path.
type ListCommand struct {
	Path string
}

func (*UploadCommand) Verb() string      { return VerbUpload }
func (*DownloadCommand) Verb() string    { return VerbDownload }
func (*RemoveCommand) Verb() string      { return VerbRemove }
func (*DownloadTarCommand) Verb() string { return VerbDownloadTar }
func (*ListCommand) Verb() string        { return VerbList }

// ParseCommand decodes one command line. Every error it returns is a
// *ProtocolError.
func ParseCommand(line string) (Command, error) {
	verb, rest, found := strings.Cut(line, wire.Separator)
	if !found {
		return nil, protocolErr(ReasonUnknownCmd)
	}
	args := wire.Split(rest)

	switch verb {
	case VerbUpload:
		n, ok := parseCount(args[0], MaxUploadFiles)
		if !ok || len(args) < 2 || args[1] == "" {
			return nil, protocolErr(ReasonBadUpload)
		}
		return &UploadCommand{Count: n, Dest: args[1]}, nil

	case VerbDownload:
		paths, ok := parsePaths(args, MaxDownloadFiles)
		if !ok {
			return nil, protocolErr(ReasonBadDownload)
		}
		return &DownloadCommand{Paths: paths}, nil

	case VerbRemove:
		paths, ok := parsePaths(args, MaxRemoveFiles)
		if !ok {
			return nil, protocolErr(ReasonBadRemove)
		}
		return &RemoveCommand{Paths: paths}, nil

	case VerbDownloadTar:
		if args[0] == "" {
			return nil, protocolErr(ReasonMissingType)
		}
		return &DownloadTarCommand{Extension: args[0]}, nil

	case VerbList:
		if args[0] == "" {
			return nil, protocolErr(ReasonBadPath)
		}
		return &ListCommand{Path: args[0]}, nil

	default:
		return nil, protocolErr(ReasonUnknownCmd)
	}
}

// parseCount accepts 1..max.
func parseCount(s string, max int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

// parsePaths reads "<N>|p1..pN"; the number of paths must equal N.
func parsePaths(args []string, max int) ([]string, bool) {
	n, ok := parseCount(args[0], max)
	if !ok || len(args)-1 != n {
		return nil, false
	}
	return args[1:], true
}

// FileMeta announces one uploaded file.
type FileMeta struct {
	Name string
	Size int64
}

// ParseFileMeta decodes a FILEMETA|<name>|<size> line. maxSize > 0 caps the
// announced size.
func ParseFileMeta(line string, maxSize int64) (FileMeta, error) {
	fields := wire.Split(line)
	if len(fields) != 3 || fields[0] != TagFileMeta {
		return FileMeta{}, fmt.Errorf("malformed file header %q", line)
	}
	size, err := wire.ParseSize(fields[2])
	if err != nil {
		return FileMeta{}, err
	}
	if maxSize > 0 && size > maxSize {
		return FileMeta{}, fmt.Errorf("file %q exceeds %d bytes", fields[1], maxSize)
	}
	return FileMeta{Name: fields[1], Size: size}, nil
}
