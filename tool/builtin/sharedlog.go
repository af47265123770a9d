package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/afero"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/tool"
)

// ErrTornRecord is returned by SharedLog.Records when the log contains a
// record that was truncated or interleaved with another write.
var ErrTornRecord = errors.New("torn record")

// SharedLog is an append-only log file shared by every agent and branch of an
// agency. Each record is written as "<length>:<payload>\n" in two separate
// writes, so unserialized concurrent appends are detectable when parsing.
type SharedLog struct {
	fs   afero.Fs
	path string
}

// NewSharedLog creates a log stored at path on fs.
func NewSharedLog(fs afero.Fs, path string) *SharedLog {
	return &SharedLog{fs: fs, path: path}
}

// Path returns the log's file path.
func (l *SharedLog) Path() string { return l.path }

// Append writes one record. Callers running concurrently must hold the
// agency's write lock; the append tool does so.
func (l *SharedLog) Append(payload string) error {
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte(strconv.Itoa(len(payload)) + ":")); err != nil {
		return err
	}

	_, err = f.Write([]byte(payload + "\n"))

	return err
}

// Records parses the log and returns every record in write order.
func (l *SharedLog) Records() ([]string, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []string
	for pos := 0; pos < len(data); {
		colon := bytes.IndexByte(data[pos:], ':')
		if colon <= 0 {
			return records, fmt.Errorf("%w at offset %d: missing length prefix", ErrTornRecord, pos)
		}

		n, err := strconv.Atoi(string(data[pos : pos+colon]))
		if err != nil || n < 0 {
			return records, fmt.Errorf("%w at offset %d: bad length prefix", ErrTornRecord, pos)
		}

		start := pos + colon + 1
		end := start + n
		if end >= len(data) || data[end] != '\n' {
			return records, fmt.Errorf("%w at offset %d: length mismatch", ErrTornRecord, pos)
		}

		records = append(records, string(data[start:end]))
		pos = end + 1
	}

	return records, nil
}

// SharedLogAppendArgs are the arguments of the shared_log_append tool.
type SharedLogAppendArgs struct {
	Message string `json:"message" description:"Text to append to the shared log"`
}

// NewSharedLogAppendTool returns a write-class tool appending to log under the
// registry family's write lock. Records are prefixed with the writer's label.
func NewSharedLogAppendTool(log *SharedLog) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"shared_log_append",
		"Append a line to the log shared by all agents.",
		SharedLogAppendArgs{},
		func(_ context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			msg, _ := args["message"].(string)

			writer := tc.AgentName()
			if b := tc.Branch(); b != "" {
				writer = b
			}

			if err := tc.WithWriteLock(func() error {
				return log.Append(writer + " " + msg)
			}); err != nil {
				return nil, err
			}

			return "appended", nil
		},
	)
}
