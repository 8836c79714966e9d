package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"formsite/backend/schema"
)

var documentTemplate = template.Must(template.New("response").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
h1 { border-bottom: 1px solid #333; padding-bottom: 0.3em; }
table { border-collapse: collapse; width: 100%; margin-top: 1em; }
td, th { border: 1px solid #ccc; padding: 0.5em; text-align: left; }
th { background: #f0f0f0; width: 30%; }
.meta { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .SubmittedAt}}<p class="meta">Submitted: {{.SubmittedAt}}</p>{{else}}<p class="meta">Draft</p>{{end}}
<table>
{{range .Rows}}<tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type documentRow struct {
	Label string
	Value string
}

type documentData struct {
	Title       string
	Description string
	SubmittedAt string
	Rows        []documentRow
}

func renderAnswer(raw json.RawMessage) string {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// renderResponseDocument lays out the form's fields and the response's
// answers as the printable HTML document handed to the pdf renderer.
func renderResponseDocument(form schema.Form, response schema.FormResponse) ([]byte, error) {
	structure, err := schema.ParseFormStructure(form.Structure)
	if err != nil {
		return nil, err
	}

	var answers map[string]json.RawMessage
	if err := json.Unmarshal(response.Answers, &answers); err != nil {
		return nil, fmt.Errorf("error parsing response answers: %w", err)
	}

	data := documentData{Title: form.Title, Description: form.Description}
	if response.SubmittedAt != nil {
		data.SubmittedAt = response.SubmittedAt.Format("2006-01-02 15:04 MST")
	}

	for _, field := range structure.Fields {
		label := field.Label
		if label == "" {
			label = field.Name
		}
		row := documentRow{Label: label}
		if raw, ok := answers[field.Name]; ok {
			row.Value = renderAnswer(raw)
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("error rendering document: %w", err)
	}

	return buf.Bytes(), nil
}
