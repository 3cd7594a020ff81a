// Package chunker partitions cleaned HTML into row-aligned substrings bounded
// by a target byte size. Every emitted chunk is wrapped in a
// stable outer container so the Extractor can parse each one uniformly.
package chunker

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/trailblazeapp/ride-ingest/internal/htmlutil"
)

const containerClass = "calendar-content"

// Config bounds the chunk sizing. InitialSize is the target size the
// greedy packer aims for; Min/Max clamp it for callers that need to adjust
// chunk granularity (e.g. retrying extraction with smaller chunks).
type Config struct {
	InitialSize int
	MinSize     int
	MaxSize     int
}

// Chunk splits doc's row nodes (matched by isRow) into chunks whose inner
// HTML does not exceed the target size (cfg.InitialSize, clamped to
// [cfg.MinSize, cfg.MaxSize] where those are set), preserving row order. A
// single row larger than the target is emitted as a chunk of its own.
// Concatenating all chunks' inner rows yields the same sequence as the input
// (the Chunker's core invariant).
func Chunk(doc *html.Node, isRow func(*html.Node) bool, cfg Config) []string {
	target := cfg.InitialSize
	if target <= 0 {
		target = 10000
	}
	if cfg.MinSize > 0 && target < cfg.MinSize {
		target = cfg.MinSize
	}
	if cfg.MaxSize > 0 && target > cfg.MaxSize {
		target = cfg.MaxSize
	}

	rows := htmlutil.FindAll(doc, isRow)

	var chunks []string
	var current []string
	currentSize := 0

	seal := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, wrap(current))
		current = nil
		currentSize = 0
	}

	for _, row := range rows {
		rowHTML := htmlutil.Render(row)
		rowSize := len(rowHTML)

		if currentSize+rowSize > target && len(current) > 0 {
			seal()
		}
		current = append(current, rowHTML)
		currentSize += rowSize
	}
	seal()

	return chunks
}

func wrap(rows []string) string {
	inner := ""
	for _, r := range rows {
		inner += r
	}
	return fmt.Sprintf(`<div class="%s">%s</div>`, containerClass, inner)
}
