package notify

import (
	"embed"
	"html/template"
	"strings"

	"github.com/jaytaylor/html2text"
)

//go:embed templates/*.html
var templateFS embed.FS

const invitationSubject = "Your Unique Therapii Connection Code"

type InvitationEmail struct {
	FirstName    string
	Code         string
	SupportEmail string
	ServiceName  string
}

// Renderer turns invitation data into HTML and plain text bodies.
type Renderer struct {
	invitation *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/invitation.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{invitation: t}, nil
}

// RenderInvitation returns the subject, HTML and text parts.
func (r *Renderer) RenderInvitation(data InvitationEmail) (subject, html, text string, err error) {
	view := struct {
		InvitationEmail
		Subject string
	}{data, invitationSubject}

	var buf strings.Builder
	if err := r.invitation.Execute(&buf, view); err != nil {
		return "", "", "", err
	}
	html = buf.String()

	text, err = html2text.FromString(html, html2text.Options{PrettyTables: true})
	if err != nil {
		return "", "", "", err
	}
	return invitationSubject, html, text, nil
}
