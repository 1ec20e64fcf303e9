package render

import (
	"bytes"
	_ "embed"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

//go:embed assets/render.css
var baseStyle string

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.Linkify,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var mermaidCodeRegex = regexp.MustCompile(`(?is)<pre><code class="language-mermaid">([\s\S]*?)</code></pre>`)

// RenderMarkdown converts markdown to an HTML fragment. Mermaid code fences
// become <pre class="mermaid"> blocks so the document script can render them.
func RenderMarkdown(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}

	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return template.HTMLEscapeString(text)
	}
	return rewriteMermaidBlocks(out.String())
}

func rewriteMermaidBlocks(html string) string {
	return mermaidCodeRegex.ReplaceAllString(html, `<pre class="mermaid">$1</pre>`)
}

// DocumentOptions controls the chrome around a rendered fragment.
type DocumentOptions struct {
	Title  string
	Info   string
	Footer string
}

// documentShell is the standalone page around a rendered fragment: embedded
// stylesheet plus Prism and Mermaid from the CDN, so a raw README renders
// readably in a browser.
const documentShell = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <meta name="referrer" content="no-referrer" />
    <style>
{{.Style}}
    </style>
    <link href="https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/themes/prism.min.css" rel="stylesheet" />
    <title>{{.Title}}</title>
  </head>

  <body class="markdown-body" id="write">
{{- if .Info}}
    <p style="margin: 20px auto; text-align: center; opacity: 0.8;">
      {{.Info}}
    </p>
{{- end}}
    <article><h1>{{.Title}}</h1>{{.Body}}</article>
{{- if .Footer}}
    <footer style="text-align: right; padding: 2em 0; font-size: 0.8em; line-height: 2;">
      {{.Footer}}
    </footer>
{{- end}}
  </body>

  <script src="https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/components/prism-core.min.js"></script>
  <script src="https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/plugins/autoloader/prism-autoloader.min.js"></script>
  <script src="https://cdnjs.cloudflare.com/ajax/libs/mermaid/10.9.1/mermaid.min.js"></script>
  <script>
    window.mermaid && window.mermaid.initialize({ theme: 'default', startOnLoad: true });
  </script>
</html>`

var documentTemplate = template.Must(template.New("document").Parse(documentShell))

type documentData struct {
	Title  string
	Style  template.CSS
	Info   template.HTML
	Body   template.HTML
	Footer template.HTML
}

// RenderDocument wraps an HTML fragment in a full page. Info and Footer are
// trusted HTML snippets; only the title gets escaped.
func RenderDocument(html string, options DocumentOptions) string {
	title := strings.TrimSpace(options.Title)
	if title == "" {
		title = "ECHO"
	}

	var out bytes.Buffer
	err := documentTemplate.Execute(&out, documentData{
		Title:  title,
		Style:  template.CSS(baseStyle),
		Info:   template.HTML(strings.TrimSpace(options.Info)),
		Body:   template.HTML(html),
		Footer: template.HTML(strings.TrimSpace(options.Footer)),
	})
	if err != nil {
		return html
	}
	return out.String()
}
