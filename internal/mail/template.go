package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer produces HTML bodies from the embedded templates.
type Renderer struct {
	activation *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/activation.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{activation: tmpl}, nil
}

type activationData struct {
	ActivationLink string
	Email          string
}

// Activation renders the welcome email carrying the activation link.
func (r *Renderer) Activation(email, link string) (string, error) {
	var buf bytes.Buffer
	if err := r.activation.Execute(&buf, activationData{ActivationLink: link, Email: email}); err != nil {
		return "", fmt.Errorf("render activation mail: %w", err)
	}
	return buf.String(), nil
}
