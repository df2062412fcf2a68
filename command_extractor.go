package autoextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// CommandKind selects the command line dialect of an external tool.
type CommandKind string

const (
	CommandUnrar    CommandKind = "unrar"
	CommandSevenZip CommandKind = "7z"
)

// CommandExtractor runs an external unrar or 7z binary. The destination must
// be a directory owned by this attempt: written files are found by walking it.
type CommandExtractor struct {
	Kind   CommandKind
	Binary string
	logger zerolog.Logger
}

// NewCommandExtractor creates a CommandExtractor. An empty binary defaults to
// the tool name looked up on PATH.
func NewCommandExtractor(kind CommandKind, binary string, logger zerolog.Logger) (*CommandExtractor, error) {
	switch kind {
	case CommandUnrar, CommandSevenZip:
	default:
		return nil, NewExtractError(ErrUnsupportedFormat, fmt.Sprintf("unknown extraction command %q", kind), "", nil)
	}
	if binary == "" {
		binary = string(kind)
	}
	return &CommandExtractor{
		Kind:   kind,
		Binary: binary,
		logger: logger.With().Str("component", "command-extractor").Logger(),
	}, nil
}

// Args builds the command line for one request.
func (c *CommandExtractor) Args(req ExtractRequest) []string {
	var args []string
	switch c.Kind {
	case CommandUnrar:
		args = []string{"x", "-y", "-o+", "-idq"}
		if req.Password != "" {
			args = append(args, "-p"+req.Password)
		} else {
			args = append(args, "-p-")
		}
		for _, entry := range sortedKeys(req.Exclude) {
			args = append(args, "-x"+entry)
		}
		args = append(args, req.ArchivePath, req.DestDir+string(filepath.Separator))
	case CommandSevenZip:
		// "-p" with an empty value answers the password prompt with nothing
		args = []string{"x", "-y", "-bd", "-aoa", "-p" + req.Password, "-o" + req.DestDir}
		for _, entry := range sortedKeys(req.Exclude) {
			args = append(args, "-x!"+entry)
		}
		args = append(args, req.ArchivePath)
	}
	return args
}

// Extract runs the tool and reports every file under req.DestDir.
// The process is killed when ctx ends.
func (c *CommandExtractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args(req)...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	c.logger.Debug().Str("archive", req.ArchivePath).Str("binary", c.Binary).Msg("Running extraction command")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classifySourceError(ctxErr, false, req.ArchivePath)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, NewExtractError(ErrInternalError, "cannot run extraction command", c.Binary, err)
		}
		return nil, c.classify(exitErr.ExitCode(), output.String(), req)
	}

	var written []string
	err := filepath.WalkDir(req.DestDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(req.DestDir, path)
			if err != nil {
				return err
			}
			written = append(written, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, NewExtractError(ErrInternalError, "cannot list extracted files", req.DestDir, err)
	}
	return &ExtractOutcome{Written: written}, nil
}

func (c *CommandExtractor) classify(code int, output string, req ExtractRequest) error {
	msg := strings.ToLower(output)
	cause := fmt.Errorf("%s exited with %d: %s", c.Kind, code, strings.TrimSpace(output))

	switch {
	case strings.Contains(msg, "wrong password"), strings.Contains(msg, "incorrect password"),
		strings.Contains(msg, "encrypted archive"), c.Kind == CommandUnrar && code == 11:
		return NewExtractError(ErrWrongPassword, "password rejected", req.ArchivePath, cause)
	case strings.Contains(msg, "no space left"), strings.Contains(msg, "not enough space"),
		strings.Contains(msg, "disk is full"), strings.Contains(msg, "disk full"):
		return NewExtractError(ErrInsufficientDiskSpace, "destination is full", req.DestDir, cause)
	case strings.Contains(msg, "name too long"), strings.Contains(msg, "path too long"):
		return NewExtractError(ErrDestinationPathTooLong, "destination path too long", req.DestDir, cause)
	case c.Kind == CommandUnrar && code == 3 && req.Password != "":
		// crc failures on encrypted entries mean a wrong key
		return NewExtractError(ErrWrongPassword, "password rejected", req.ArchivePath, cause)
	case strings.Contains(msg, "cannot open"), strings.Contains(msg, "is not rar archive"),
		strings.Contains(msg, "can not open the file as archive"):
		return NewExtractError(ErrArchiveUnreadable, "tool cannot open archive", req.ArchivePath, cause)
	default:
		return NewExtractError(ErrArchiveCorrupt, "extraction command failed", req.ArchivePath, cause)
	}
}
