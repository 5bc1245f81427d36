package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"cyber-digest/pkg/domain"
)

const pageTemplate = `<html>
<head>
<style>
    body {font-family: Arial, sans-serif; line-height: 1.6;}
    h2 {color: #2E8B57;}
    ul {list-style-type: none; padding: 0;}
    li {margin: 10px 0;}
    a {text-decoration: none; color: #1E90FF;}
    a:hover {text-decoration: underline;}
    .summary {font-size: 0.9em; color: #555;}
    .meta {font-size: 0.8em; color: #888;}
    .category {margin-top: 20px; clear: both;}
    .category img {width: 100px; height: auto; float: left; margin-right: 20px;}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .NothingNew}}
<p>{{nothingNew}}</p>
{{- end}}
{{- range .Sections}}
<div class='category'>{{if .Image}}<img src='{{.Image}}' alt='{{.Category}} Image'>{{end}}<h2>{{.Category}}</h2><ul>
{{- range .Items}}
<li><a href='{{.URL}}'>{{.Title}}</a>
{{- if or .HasDate .Source}}<div class='meta'>{{if .HasDate}}{{date .PublishedAt}}{{end}}{{if and .HasDate .Source}} &middot; {{end}}{{.Source}}</div>{{end}}
{{- if .Summary}}<div class='summary'>{{.Summary}}</div>{{end}}</li>
{{- end}}
</ul></div>
{{- end}}
{{- range .Supplements}}
<div class='category'><h2>{{.Name}}</h2>
{{- if .Failed}}
<p>{{.Placeholder}}</p>
{{- else}}<ul>
{{- range .Entries}}
<li>{{if .URL}}<a href='{{.URL}}'>{{.Title}}</a>{{else}}{{.Title}}{{end}}{{if .Summary}}<div class='summary'>{{.Summary}}</div>{{end}}</li>
{{- end}}
</ul>
{{- end}}</div>
{{- end}}
</body>
</html>
`

var page = template.Must(template.New("digest").Funcs(template.FuncMap{
	"nothingNew": func() string { return NothingNewText },
	"date":       func(t time.Time) string { return t.Format(domain.DateLayout) },
}).Parse(pageTemplate))

// RenderHTML renders doc as the styled HTML message body
func RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}
