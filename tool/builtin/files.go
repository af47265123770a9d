package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/tool"
)

// NewOsFs returns a filesystem rooted at dir. Paths handed to the file tools
// are resolved inside dir and cannot escape it.
func NewOsFs(dir string) afero.Fs {
	return afero.NewBasePathFs(afero.NewOsFs(), dir)
}

func cleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	return filepath.Clean("/" + p), nil
}

// ReadFileArgs are the arguments of the read_file tool.
type ReadFileArgs struct {
	Path string `json:"path" description:"Path of the file to read"`
}

// NewReadFileTool returns a tool reading a file and recording the read in the
// ToolContext, which later edits require.
func NewReadFileTool(fs afero.Fs) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"read_file",
		"Read the contents of a file.",
		ReadFileArgs{},
		func(_ context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			path, err := cleanPath(stringArg(args, "path"))
			if err != nil {
				return nil, err
			}

			data, err := afero.ReadFile(fs, path)
			if err != nil {
				return nil, err
			}

			tc.MarkRead(path)

			return string(data), nil
		},
	)
}

// WriteFileArgs are the arguments of the write_file tool.
type WriteFileArgs struct {
	Path    string `json:"path" description:"Path of the file to write"`
	Content string `json:"content" description:"Full new file content"`
}

// NewWriteFileTool returns a write-class tool creating or replacing a file
// under the shared write lock. The written path counts as read afterwards.
func NewWriteFileTool(fs afero.Fs) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"write_file",
		"Create or overwrite a file with the given content.",
		WriteFileArgs{},
		func(_ context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			path, err := cleanPath(stringArg(args, "path"))
			if err != nil {
				return nil, err
			}
			content := stringArg(args, "content")

			err = tc.WithWriteLock(func() error {
				if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				return afero.WriteFile(fs, path, []byte(content), 0o644)
			})
			if err != nil {
				return nil, err
			}

			tc.MarkRead(path)

			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	)
}

// EditFileArgs are the arguments of the edit_file tool.
type EditFileArgs struct {
	Path      string `json:"path" description:"Path of the file to edit"`
	OldString string `json:"old_string" description:"Exact text to replace; must occur exactly once"`
	NewString string `json:"new_string" description:"Replacement text"`
}

// NewEditFileTool returns an edit-class tool. The target must have been read
// through the same ToolContext first (a branch inherits the reads of the
// agent that fanned out); otherwise the call fails with
// core.ErrPreconditionViolation.
func NewEditFileTool(fs afero.Fs) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"edit_file",
		"Replace one exact occurrence of text in a file previously read with read_file.",
		EditFileArgs{},
		func(_ context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			path, err := cleanPath(stringArg(args, "path"))
			if err != nil {
				return nil, err
			}

			if err := tc.RequireRead(path); err != nil {
				return nil, err
			}

			oldStr, newStr := stringArg(args, "old_string"), stringArg(args, "new_string")
			if oldStr == "" {
				return nil, fmt.Errorf("old_string must not be empty")
			}

			err = tc.WithWriteLock(func() error {
				data, err := afero.ReadFile(fs, path)
				if err != nil {
					return err
				}

				content := string(data)
				switch n := strings.Count(content, oldStr); n {
				case 0:
					return fmt.Errorf("old_string not found in %s", path)
				case 1:
				default:
					return fmt.Errorf("old_string occurs %d times in %s", n, path)
				}

				info, err := fs.Stat(path)
				mode := os.FileMode(0o644)
				if err == nil {
					mode = info.Mode().Perm()
				}

				return afero.WriteFile(fs, path, []byte(strings.Replace(content, oldStr, newStr, 1)), mode)
			})
			if err != nil {
				return nil, err
			}

			return fmt.Sprintf("edited %s", path), nil
		},
	)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
