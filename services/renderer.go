package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"cerbo-api/utils"
)

// HTTPRenderer posts structured data to an external rendering service and
// returns the produced document bytes.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRenderer(baseURL string, client *http.Client) *HTTPRenderer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPRenderer{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *HTTPRenderer) RenderReport(ctx context.Context, doc ReportDocument) ([]byte, error) {
	return r.post(ctx, "/reports", doc)
}

func (r *HTTPRenderer) RenderMinutes(ctx context.Context, minutes MinutesRecord) ([]byte, error) {
	return r.post(ctx, "/minutes", minutes)
}

func (r *HTTPRenderer) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("render service error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rendered document: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render service returned an empty document")
	}
	return data, nil
}

// HTMLRenderer renders printable HTML in-process. It is used when no
// rendering service is configured.
type HTMLRenderer struct {
	loc *time.Location
}

func NewHTMLRenderer(loc *time.Location) *HTMLRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &HTMLRenderer{loc: loc}
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="fr"><head><meta charset="utf-8"><title>Rapport {{.Doc.ReferenceCode}}</title></head>
<body>
<h1>Rapport d'évaluation</h1>
<p><strong>Projet :</strong> {{.Doc.ReferenceCode}} - {{.Doc.ProjectTitle}}</p>
<p><strong>Chercheur principal :</strong> {{.Doc.InvestigatorName}}</p>
<p><strong>Envoyé le :</strong> {{.SentAt}}</p>
<p><strong>Réponse attendue avant le :</strong> {{.Deadline}}</p>
<ol>
{{range .Doc.Remarks}}<li><p>{{.Content}}</p>{{if .AdminComment}}<p><em>{{.AdminComment}}</em></p>{{end}}</li>
{{end}}</ol>
</body></html>
`))

var minutesTemplate = template.Must(template.New("minutes").Parse(`<!DOCTYPE html>
<html lang="fr"><head><meta charset="utf-8"><title>Procès-verbal {{.Minutes.Meeting.Label}}</title></head>
<body>
<h1>Procès-verbal - séance de {{.Minutes.Meeting.Label}}</h1>
<p>{{.ScheduledAt}}</p>
<h2>Présents</h2>
<ul>{{range .Minutes.Present}}<li>{{.Name}}</li>{{else}}<li>Aucun</li>{{end}}</ul>
<h2>Absents</h2>
<ul>{{range .Minutes.Absent}}<li>{{.Name}}{{if .Justified}} (excusé : {{.Justification}}){{end}}</li>{{else}}<li>Aucun</li>{{end}}</ul>
<h2>Évaluateurs</h2>
<ul>{{range .Minutes.Examiners}}<li>{{.Name}}</li>{{else}}<li>Aucun</li>{{end}}</ul>
<h2>Ordre du jour</h2>
{{range .Minutes.Projects}}<h3>{{.ReferenceCode}} - {{.Title}}</h3>
<p><strong>Décision :</strong> {{if .Decision}}{{.Decision}}{{else}}-{{end}}</p>
{{range .Responses}}<blockquote>{{.ResponseText}}</blockquote>{{end}}
{{end}}
</body></html>
`))

func (r *HTMLRenderer) RenderReport(_ context.Context, doc ReportDocument) ([]byte, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, map[string]interface{}{
		"Doc":      doc,
		"SentAt":   utils.FormatFrenchDate(doc.SentAt, r.loc),
		"Deadline": utils.FormatFrenchDate(doc.ResponseDeadline, r.loc),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *HTMLRenderer) RenderMinutes(_ context.Context, minutes MinutesRecord) ([]byte, error) {
	var buf bytes.Buffer
	err := minutesTemplate.Execute(&buf, map[string]interface{}{
		"Minutes":     minutes,
		"ScheduledAt": utils.FormatFrenchDateTime(minutes.Meeting.ScheduledAt, r.loc),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
