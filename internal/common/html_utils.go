package common

import (
	"strings"

	"golang.org/x/net/html"
)

// Attribute markers that identify an error/alert element on a login page.
var loginErrorMarkers = []string{"error", "alert", "flash", "notice", "warning"}

// ExtractLoginError scans a login page for a visible error message and
// returns its text, or "" when no candidate element is found. Used to
// surface a human-readable reason when login lands back on the login page.
func ExtractLoginError(pageHTML string) string {
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	for _, node := range findErrorNodes(root) {
		text := ExtractText(node)
		if text == "" {
			continue
		}
		// Keep the reason short enough for an error payload
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}

	return ""
}

// findErrorNodes collects element nodes whose class, id or role attribute
// contains one of the login error markers, in document order.
func findErrorNodes(root *html.Node) []*html.Node {
	var nodes []*html.Node

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && isErrorNode(n) {
			nodes = append(nodes, n)
			return // children are part of the same message
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(root)
	return nodes
}

func isErrorNode(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" && attr.Key != "id" && attr.Key != "role" {
			continue
		}
		value := strings.ToLower(attr.Val)
		for _, marker := range loginErrorMarkers {
			if strings.Contains(value, marker) {
				return true
			}
		}
	}
	return false
}

// ExtractText gets all text content from an HTML node and its children
func ExtractText(node *html.Node) string {
	var text strings.Builder

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(node)
	return strings.Join(strings.Fields(text.String()), " ")
}
