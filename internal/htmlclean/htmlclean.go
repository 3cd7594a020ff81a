// Package htmlclean reduces a raw source payload — possibly JSON-wrapped —
// to a parsed HTML tree with chrome elements (script, style, nav, header,
// footer) removed, and checks that at least one calendar row matching the
// source's row selector remains. Other markup outside the rows is left in
// place; the Chunker picks the rows out of the tree.
package htmlclean

import (
	"encoding/json"
	"fmt"

	"golang.org/x/net/html"

	"github.com/trailblazeapp/ride-ingest/internal/htmlutil"
)

// NoRowsFoundError is returned when the cleaned document contains no nodes
// matching the source's row selector.
type NoRowsFoundError struct {
	Source string
}

func (e *NoRowsFoundError) Error() string {
	return fmt.Sprintf("htmlclean: no event rows found for source %q", e.Source)
}

var strippedTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"header": true,
	"footer": true,
}

// RowSelector reports whether a node is a calendar-row container for the
// active Source Driver (e.g. class "calendarRow" for AERC).
type RowSelector func(*html.Node) bool

// Clean decodes payload (raw HTML, or JSON `{"html": "..."}`), strips chrome
// elements, and returns the cleaned fragment as a parsed node tree. It
// returns NoRowsFoundError if no row matches isRow survive.
func Clean(payload []byte, source string, isRow RowSelector) (*html.Node, error) {
	raw := unwrapJSON(payload)

	doc, err := htmlutil.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("htmlclean: parse: %w", err)
	}

	for _, n := range htmlutil.FindAll(doc, func(n *html.Node) bool { return strippedTags[n.Data] }) {
		htmlutil.Remove(n)
	}

	rows := htmlutil.FindAll(doc, isRow)
	if len(rows) == 0 {
		return nil, &NoRowsFoundError{Source: source}
	}

	return doc, nil
}

// unwrapJSON extracts the "html" field from a JSON-wrapped payload
// (`{"html": "..."}`, AERC's admin-ajax response shape), falling back to the
// raw payload as-is when it is not valid JSON or lacks that field.
func unwrapJSON(payload []byte) string {
	var wrapped struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.HTML != "" {
		return wrapped.HTML
	}
	return string(payload)
}
