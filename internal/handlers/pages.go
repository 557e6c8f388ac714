package handlers

import (
	"bytes"
	"html/template"
	"time"

	"github.com/akmatori/incidentd/internal/services"
	"github.com/akmatori/incidentd/internal/utils"
)

type pageKind string

const (
	pageSuccess pageKind = "success"
	pageInfo    pageKind = "info"
	pageWarning pageKind = "warning"
	pageError   pageKind = "error"
)

var pageColors = map[pageKind]string{
	pageSuccess: "#16a34a",
	pageInfo:    "#2563eb",
	pageWarning: "#d97706",
	pageError:   "#dc2626",
}

type pageDetail struct {
	Label string
	Value string
}

type pageData struct {
	Title       string
	Heading     string
	Message     string
	Color       string
	Details     []pageDetail
	ActionURL   string
	ActionLabel string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f3f4f6; margin: 0; padding: 40px 16px; color: #111827; }
.card { max-width: 560px; margin: 0 auto; background: #fff; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,.1); overflow: hidden; }
.banner { background: {{.Color}}; color: #fff; padding: 20px 24px; font-size: 20px; font-weight: 600; }
.body { padding: 24px; }
.details { border-top: 1px solid #e5e7eb; margin-top: 16px; padding-top: 16px; }
.row { display: flex; padding: 4px 0; }
.label { width: 140px; color: #6b7280; }
.button { display: inline-block; margin-top: 20px; padding: 10px 18px; background: {{.Color}}; color: #fff; border-radius: 6px; text-decoration: none; font-weight: 600; }
</style>
</head>
<body>
<div class="card">
<div class="banner">{{.Heading}}</div>
<div class="body">
<p>{{.Message}}</p>
{{- if .Details}}
<div class="details">
{{- range .Details}}
<div class="row"><span class="label">{{.Label}}</span><span>{{.Value}}</span></div>
{{- end}}
</div>
{{- end}}
{{- if .ActionURL}}
<a class="button" href="{{.ActionURL}}">{{.ActionLabel}}</a>
{{- end}}
</div>
</div>
</body>
</html>
`))

var errorPage = mustRender(pageData{
	Title:   "Error",
	Heading: "Something went wrong",
	Message: "The request could not be completed. Please try again later.",
	Color:   pageColors[pageError],
})

func mustRender(data pageData) []byte {
	page, err := renderPage(data)
	if err != nil {
		panic(err)
	}
	return page
}

func renderPage(data pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderTransitionPage builds the page shown after a magic link click
func renderTransitionPage(result services.TransitionResult, links services.Links) ([]byte, error) {
	if result.Outcome == services.OutcomeInvalidToken {
		return renderPage(pageData{
			Title:   "Invalid link",
			Heading: "Invalid or expired link",
			Message: "The link is invalid or has expired. Please check your notification for the correct link.",
			Color:   pageColors[pageError],
		})
	}

	incident := result.Incident
	kind := pageInfo
	switch result.Outcome {
	case services.OutcomeAcknowledged, services.OutcomeResolved:
		kind = pageSuccess
	case services.OutcomeMustAcknowledgeFirst:
		kind = pageWarning
	}

	data := pageData{
		Title:   result.Message(),
		Heading: result.Message(),
		Message: incident.Title,
		Color:   pageColors[kind],
		Details: []pageDetail{
			{Label: "Incident", Value: incident.ID},
			{Label: "Severity", Value: incident.Severity},
			{Label: "Source", Value: incident.Source},
			{Label: "Status", Value: string(incident.Status)},
			{Label: "Created", Value: incident.CreatedAt.UTC().Format(time.RFC1123)},
		},
	}
	if incident.AcknowledgedAt != nil {
		data.Details = append(data.Details, pageDetail{
			Label: "Acknowledged after",
			Value: utils.FormatDuration(incident.AcknowledgedAt.Sub(incident.CreatedAt)),
		})
	}
	if incident.ResolvedAt != nil {
		data.Details = append(data.Details, pageDetail{
			Label: "Resolved after",
			Value: utils.FormatDuration(incident.ResolvedAt.Sub(incident.CreatedAt)),
		})
	}

	// offer the resolve step right after acknowledging
	if result.Outcome == services.OutcomeAcknowledged && incident.ResolveToken != nil {
		data.ActionURL = links.ResolveURL(*incident.ResolveToken)
		data.ActionLabel = "Mark as Resolved"
	}
	return renderPage(data)
}
