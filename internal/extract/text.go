package extract

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	scouterr "github.com/docscout/docscout/internal/errors"
)

// blockSplit separates plain text into paragraph blocks on blank lines.
var blockSplit = regexp.MustCompile(`\n\s*\n`)

// TextParser extracts paragraph blocks from plain text and markdown files.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

// Parse returns one unit per blank-line-separated block.
func (p *TextParser) Parse(ctx context.Context, path string) ([]Unit, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scouterr.ExtractionError(path, err)
	}

	var units []Unit
	ordinal := 0
	for _, block := range blockSplit.Split(string(data), -1) {
		text := strings.TrimSpace(block)
		if text == "" {
			continue
		}
		ordinal++
		units = append(units, Unit{
			Location: fmt.Sprintf("block %d", ordinal),
			Ordinal:  ordinal,
			Text:     text,
		})
	}

	return units, nil
}
