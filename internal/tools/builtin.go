package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// DefaultReadLimit is the read_file byte cap applied when the caller
// does not pass max_bytes.
const DefaultReadLimit = 200_000

// EchoSpec describes the echo tool.
func EchoSpec() Spec {
	return Spec{
		Name:        "echo",
		Description: "Echo the provided text back to the caller.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "Text to echo back.",
				},
			},
			"required":             []any{"text"},
			"additionalProperties": false,
		},
	}
}

// EchoHandler returns the text argument unchanged.
func EchoHandler(_ context.Context, args map[string]any) *models.ToolResponse {
	text, _ := args["text"].(string)
	return models.NewTextResponse(text)
}

// ReadFileSpec describes the read_file tool.
func ReadFileSpec() Spec {
	return Spec{
		Name:        "read_file",
		Description: "Read a UTF-8 text file from the sandboxed files directory.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the files directory.",
				},
				"max_bytes": map[string]any{
					"type":        "integer",
					"description": "Maximum number of bytes to read.",
					"default":     DefaultReadLimit,
					"minimum":     1,
				},
			},
			"required":             []any{"path"},
			"additionalProperties": false,
		},
	}
}

// NewReadFileHandler builds the read_file handler rooted at dir.
// Absolute paths and traversal outside the root are rejected; contents
// are decoded as UTF-8 with invalid bytes replaced.
func NewReadFileHandler(dir string) Handler {
	root := filepath.Clean(dir)

	return func(_ context.Context, args map[string]any) *models.ToolResponse {
		rawPath, _ := args["path"].(string)
		rawPath = strings.TrimSpace(rawPath)
		if rawPath == "" {
			return models.NewErrorResponse("path is required")
		}
		if filepath.IsAbs(rawPath) {
			return models.NewErrorResponse("path must be relative to the files directory")
		}

		cleaned := filepath.Clean(rawPath)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return models.NewErrorResponse("path escapes the files directory")
		}

		limit := DefaultReadLimit
		if v, ok := args["max_bytes"]; ok {
			switch n := v.(type) {
			case float64:
				limit = int(n)
			case int:
				limit = n
			}
		}
		if limit < 1 {
			return models.NewErrorResponse("max_bytes must be positive")
		}

		full := filepath.Join(root, cleaned)
		f, err := os.Open(full) // #nosec G304 -- path is confined to the sandbox root above
		if err != nil {
			if os.IsNotExist(err) {
				return models.NewErrorResponse(fmt.Sprintf("file not found: %s", cleaned))
			}
			return models.NewErrorResponse(fmt.Sprintf("cannot read %s: %v", cleaned, err))
		}
		defer f.Close()

		info, err := f.Stat()
		if err == nil && info.IsDir() {
			return models.NewErrorResponse(fmt.Sprintf("%s is a directory", cleaned))
		}

		data, err := io.ReadAll(io.LimitReader(f, int64(limit)))
		if err != nil {
			return models.NewErrorResponse(fmt.Sprintf("cannot read %s: %v", cleaned, err))
		}

		return models.NewTextResponse(strings.ToValidUTF8(string(data), "�"))
	}
}
