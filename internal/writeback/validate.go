package writeback

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/agentic-research/alchemy/internal/extract"
)

// Validate parses content as Python and returns a *extract.ParseError if
// the result would not be valid source. Non-Python paths pass through.
func Validate(ctx context.Context, content []byte, filePath string) error {
	if strings.ToLower(filepath.Ext(filePath)) != ".py" {
		return nil
	}
	t, err := extract.Parse(ctx, content, filePath)
	if err != nil {
		return err
	}
	t.Close()
	return nil
}
