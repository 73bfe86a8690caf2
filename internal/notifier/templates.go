package notifier

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	RuleID      string
	RuleTitle   string
	Level       string
	LevelColor  string
	Details     string
	Timestamp   string
	Channel     string
	Computer    string
	SourceFile  string
	IsAggregate bool
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the color for a rule level.
func severityColor(level string) string {
	switch level {
	case "critical":
		return "#d32f2f" // red
	case "high":
		return "#f57c00" // orange
	case "medium":
		return "#fbc02d" // yellow
	case "low":
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// AlertToTemplateData converts an alert row to template data.
func AlertToTemplateData(row *detect.AlertRow) *TemplateData {
	return &TemplateData{
		RuleID:      row.RuleID,
		RuleTitle:   row.RuleTitle,
		Level:       row.RuleLevel,
		LevelColor:  severityColor(row.RuleLevel),
		Details:     row.Details,
		Timestamp:   row.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Channel:     row.Channel,
		Computer:    row.Computer,
		SourceFile:  row.SourceFile,
		IsAggregate: row.IsAggregate,
	}
}
