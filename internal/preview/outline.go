package preview

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Outline summarises a composed document the way a browser would parse it.
type Outline struct {
	Title        string   `json:"title"`
	StyleBlocks  int      `json:"style_blocks"`
	ScriptBlocks int      `json:"script_blocks"`
	Styles       string   `json:"styles"`
	Script       string   `json:"script"`
	BodyElements []string `json:"body_elements"`
	Body         string   `json:"body"`
}

// Inspect parses doc with an HTML5 parser and reports its structure. The
// body summary skips script elements and whitespace-only text so two
// documents with the same visible content compare equal.
func Inspect(doc string) (Outline, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Outline{}, err
	}

	var out Outline
	var styles, scripts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if out.Title == "" {
					out.Title = textOf(n)
				}
			case atom.Style:
				out.StyleBlocks++
				styles = append(styles, textOf(n))
			case atom.Script:
				out.ScriptBlocks++
				scripts = append(scripts, textOf(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	out.Styles = strings.Join(styles, "\n")
	out.Script = strings.Join(scripts, "\n")

	if body := findElement(root, atom.Body); body != nil {
		var buf bytes.Buffer
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
				continue
			case c.Type == html.ElementNode && c.DataAtom == atom.Script:
				continue
			case c.Type == html.ElementNode:
				out.BodyElements = append(out.BodyElements, c.Data)
			}
			if err := html.Render(&buf, c); err != nil {
				return Outline{}, err
			}
		}
		out.Body = buf.String()
	}
	return out, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
