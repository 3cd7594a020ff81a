// Package htmlutil provides small DOM-traversal helpers shared by the HTML
// Cleaner, Chunker, and the structural Extractor strategy, all built on
// golang.org/x/net/html's tokenizer/tree parser.
package htmlutil

import (
	"strings"

	"golang.org/x/net/html"
)

// HasClass reports whether n carries class in its space-separated "class"
// attribute.
func HasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// Attr returns the value of attribute key on n, or ("", false) if absent.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// FindAll walks the tree rooted at n (depth-first, pre-order) and returns
// every element node for which match returns true. It also descends into
// matched nodes, so nested matches are returned too — callers that want
// non-nested matches should filter overlapping results themselves.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && match(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// FindFirst returns the first element matching match, or nil.
func FindFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// ByTag matches elements with the given tag name.
func ByTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

// ByClass matches elements carrying the given class.
func ByClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return HasClass(n, class) }
}

// Text concatenates all text-node descendants of n, collapsing whitespace.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Render serialises n back to an HTML string.
func Render(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

// Remove detaches n from its parent, pruning it (and its subtree) from the
// document the Cleaner is scrubbing.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Parse parses an HTML fragment/document into a *html.Node tree.
func Parse(raw string) (*html.Node, error) {
	return html.Parse(strings.NewReader(raw))
}
