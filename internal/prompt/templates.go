package prompt

import (
	"text/template"
)

const contextTemplateText = `[Memory context]
Time: {{.Now}}
{{- if .Query}}
Query: {{.Query}}
{{- end}}

{{- if .Graph}}

[Known facts]
{{- range .Graph}}
- {{.}}
{{- end}}
{{- end}}

{{- if .Memories}}

[Related memories]
{{- range .Memories}}
- {{.}}
{{- end}}
{{- end}}

{{- if .History}}

[Recent conversation]
{{- range .History}}
{{.Role}}: {{.Content}}
{{- end}}
{{- end}}
`

var contextTemplate = template.Must(template.New("context").Parse(contextTemplateText))
