// Package render turns a finished report body into markdown, HTML and PDF
// artifacts. Mermaid diagrams are carried through as fenced blocks in
// markdown and as live client-rendered divs in HTML.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var mermaidFence = regexp.MustCompile("(?s)```mermaid\\s*\n(.*?)```")

const htmlShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
<script>mermaid.initialize({startOnLoad: true});</script>
<style>
body { font-family: sans-serif; max-width: 860px; margin: 2em auto; line-height: 1.6; }
table { border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 0.4em 0.8em; }
pre { background: #f4f4f4; padding: 1em; overflow-x: auto; }
</style>
</head>
<body>
%s
</body>
</html>
`

// toHTML converts report markdown to a standalone HTML page. Mermaid
// fences become divs the bundled mermaid script renders in the browser.
func toHTML(title, markdown string) (string, error) {
	type diagram struct {
		placeholder string
		code        string
	}
	var diagrams []diagram
	markdown = mermaidFence.ReplaceAllStringFunc(markdown, func(fence string) string {
		code := mermaidFence.FindStringSubmatch(fence)[1]
		d := diagram{
			placeholder: fmt.Sprintf("MERMAIDBLOCK%dMERMAIDBLOCK", len(diagrams)),
			code:        code,
		}
		diagrams = append(diagrams, d)
		return "\n" + d.placeholder + "\n"
	})

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}

	body := buf.String()
	for _, d := range diagrams {
		div := "<div class=\"mermaid\">\n" + strings.TrimSpace(d.code) + "\n</div>"
		// The placeholder may have been wrapped in a paragraph.
		body = strings.ReplaceAll(body, "<p>"+d.placeholder+"</p>", div)
		body = strings.ReplaceAll(body, d.placeholder, div)
	}

	return fmt.Sprintf(htmlShell, htmlEscape(title), body), nil
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
