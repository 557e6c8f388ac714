package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/utils"
)

var funcs = template.FuncMap{
	"upper":    strings.ToUpper,
	"truncate": utils.TruncateText,
	"short": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
	"emoji": severityEmoji,
	"when": func(req queue.NotificationRequest) string {
		return req.Incident.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST")
	},
}

const assignmentText = `INCIDENT ASSIGNED TO YOU

Incident ID: #{{.Incident.ID}}
Title: {{.Incident.Title}}
Severity: {{upper .Incident.Severity}}
Source: {{.Incident.Source}}
Description: {{if .Incident.Description}}{{.Incident.Description}}{{else}}No description provided{{end}}
Created At: {{when .}}
Assigned To: {{.Engineer.Name}} ({{.Engineer.Email}})
{{if .Incident.AckURL}}
ACKNOWLEDGE NOW: {{.Incident.AckURL}}
{{end}}
---
This is an automated notification from incidentd.
Open the ACKNOWLEDGE link to confirm you have received this incident.
`

const acknowledgedText = `INCIDENT ACKNOWLEDGED

You have acknowledged this incident.

Incident ID: #{{.Incident.ID}}
Title: {{.Incident.Title}}
Severity: {{upper .Incident.Severity}}
Status: ACKNOWLEDGED - awaiting resolution
Acknowledged By: {{.Engineer.Name}} ({{.Engineer.Email}})
{{if .Incident.ResolveURL}}
Once the issue is fixed, open the link below to mark it resolved.

RESOLVE INCIDENT: {{.Incident.ResolveURL}}
{{end}}
---
This is an automated notification from incidentd.
`

const resolvedText = `INCIDENT RESOLVED

Incident #{{.Incident.ID}} has been resolved by {{.Engineer.Name}}.

Title: {{.Incident.Title}}
Severity: {{upper .Incident.Severity}}
Source: {{.Incident.Source}}

---
This is an automated notification from incidentd.
`

const smsText = `{{emoji .Incident.Severity}} INCIDENT #{{short .Incident.ID}}
{{upper .Incident.Severity}}: {{truncate .Incident.Title 40}}{{if .Incident.AckURL}}
ACK: {{.Incident.AckURL}}{{end}}`

const resolvedSMSText = `RESOLVED #{{short .Incident.ID}}: {{truncate .Incident.Title 50}}`

var (
	emailBodies = map[string]*template.Template{
		queue.NotificationIncidentAssignment: template.Must(template.New("assignment").Funcs(funcs).Parse(assignmentText)),
		queue.NotificationEscalation:         template.Must(template.New("escalation").Funcs(funcs).Parse(assignmentText)),
		queue.NotificationAcknowledged:       template.Must(template.New("acknowledged").Funcs(funcs).Parse(acknowledgedText)),
		queue.NotificationResolved:           template.Must(template.New("resolved").Funcs(funcs).Parse(resolvedText)),
	}
	smsBody         = template.Must(template.New("sms").Funcs(funcs).Parse(smsText))
	resolvedSMSBody = template.Must(template.New("sms-resolved").Funcs(funcs).Parse(resolvedSMSText))
)

// Subject returns the email subject line for req
func Subject(req queue.NotificationRequest) string {
	inc := req.Incident
	switch req.Type {
	case queue.NotificationAcknowledged:
		return fmt.Sprintf("Incident #%s Acknowledged - Resolve Link", inc.ID)
	case queue.NotificationResolved:
		return fmt.Sprintf("Incident #%s Resolved: %s", inc.ID, inc.Title)
	default:
		return fmt.Sprintf("[%s] Incident Assigned: %s", strings.ToUpper(inc.Severity), inc.Title)
	}
}

// RenderEmail renders the plain text email body for req
func RenderEmail(req queue.NotificationRequest) (string, error) {
	tmpl, ok := emailBodies[req.Type]
	if !ok {
		return "", fmt.Errorf("no email template for notification type %q", req.Type)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", req.Type, err)
	}
	return buf.String(), nil
}

// RenderSMS renders the short text message for req
func RenderSMS(req queue.NotificationRequest) (string, error) {
	tmpl := smsBody
	if req.Type == queue.NotificationResolved {
		tmpl = resolvedSMSBody
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("failed to render %s sms: %w", req.Type, err)
	}
	return buf.String(), nil
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	case "warning":
		return "🟡"
	case "info":
		return "🔵"
	default:
		return "⚪"
	}
}
