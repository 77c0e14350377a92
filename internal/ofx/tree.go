package ofx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// node is a minimal markup tree node: tag name, accumulated text content,
// and ordered children. OFX has no schema worth modeling; traversal is by
// tag name only.
type node struct {
	tag      string
	text     strings.Builder
	children []*node
}

// parseTree builds a node tree from normalized markup. The decoder runs in
// non-strict mode so residual SGML-isms (unescaped ampersands, directives)
// do not abort the parse. Any error here signals the caller to fall back
// to the text-scan extractor.
func parseTree(body string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false

	root := &node{tag: ""}
	stack := []*node{root}

	for {
		// RawToken skips the decoder's nesting checks; the stack below
		// tolerates mismatched and unclosed elements on its own.
		tok, err := dec.RawToken()
		if tok == nil && err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("building markup tree: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child := &node{tag: strings.ToUpper(t.Name.Local)}
			top := stack[len(stack)-1]
			top.children = append(top.children, child)
			stack = append(stack, child)
		case xml.EndElement:
			name := strings.ToUpper(t.Name.Local)
			// Unwind to the matching open tag. An end tag with no open
			// counterpart is ignored; intervening unclosed elements are
			// implicitly closed.
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].tag == name {
					stack = stack[:i]
					break
				}
			}
		case xml.CharData:
			top := stack[len(stack)-1]
			top.text.Write(t)
		}
	}

	return root, nil
}

// find returns the first node with the given tag, depth-first.
func (n *node) find(tag string) *node {
	tag = strings.ToUpper(tag)
	for _, c := range n.children {
		if c.tag == tag {
			return c
		}
		if found := c.find(tag); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every node with the given tag, in document order.
func (n *node) findAll(tag string) []*node {
	tag = strings.ToUpper(tag)
	var result []*node
	for _, c := range n.children {
		if c.tag == tag {
			result = append(result, c)
		}
		result = append(result, c.findAll(tag)...)
	}
	return result
}

// childText returns the trimmed text of the first descendant with the given
// tag, or "" when absent.
func (n *node) childText(tag string) string {
	c := n.find(tag)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text.String())
}
