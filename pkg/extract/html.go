package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// convertHTML returns the document title and the body as markdown. Script,
// style and navigation elements are dropped before conversion.
func convertHTML(data []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title := htmlTitle(doc)

	removeElements(doc, "script", "style", "noscript", "nav", "iframe", "form")

	root := findElement(doc, "main")
	if root == nil {
		root = findElement(doc, "body")
	}
	if root == nil {
		root = doc
	}

	var buf strings.Builder

	err = html.Render(&buf, root)
	if err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}

	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())

	markdown, err := conv.ConvertString(buf.String())
	if err != nil {
		return "", "", fmt.Errorf("convert html to markdown: %w", err)
	}

	return title, cleanMarkdown(markdown), nil
}

func htmlTitle(doc *html.Node) string {
	n := findElement(doc, "title")
	if n == nil || n.FirstChild == nil {
		return ""
	}

	return strings.TrimSpace(n.FirstChild.Data)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}

	return nil
}

func removeElements(n *html.Node, tags ...string) {
	var remove []*html.Node

	var collect func(*html.Node)
	collect = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && slices.Contains(tags, c.Data) {
				remove = append(remove, c)

				continue
			}

			collect(c)
		}
	}
	collect(n)

	for _, node := range remove {
		node.Parent.RemoveChild(node)
	}
}

func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
