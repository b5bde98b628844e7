package notifications

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

const passwordResetTemplate = `Hello {{.CustomerName}},

Click the following link to reset your password:

{{if .Markdown}}[Reset Password]({{.Link}}){{else}}{{.Link}}{{end}}

The link expires in {{.ValidFor}}. If you didn't request this, please ignore this email.
`

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(passwordResetTemplate))

// PasswordReset carries the values rendered into the reset mail.
type PasswordReset struct {
	To           string
	CustomerName string
	BaseURL      string
	Token        string
	ValidFor     string
}

// ResetLink builds <base>/reset-password?token=<token>.
func ResetLink(baseURL string, token string) (string, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return "", fmt.Errorf("notifications: reset base url: %w", err)
	}
	link := base.JoinPath("reset-password")
	link.RawQuery = url.Values{"token": []string{token}}.Encode()
	return link.String(), nil
}

// RenderPasswordReset builds the plain text and sanitised HTML versions of the reset mail.
func RenderPasswordReset(data PasswordReset) (Email, error) {
	if strings.TrimSpace(data.Token) == "" {
		return Email{}, fmt.Errorf("notifications: reset token is required")
	}
	link, err := ResetLink(data.BaseURL, data.Token)
	if err != nil {
		return Email{}, err
	}
	view := struct {
		PasswordReset
		Link     string
		Markdown bool
	}{PasswordReset: data, Link: link}

	var text bytes.Buffer
	if err := passwordResetTmpl.Execute(&text, view); err != nil {
		return Email{}, fmt.Errorf("notifications: render password reset: %w", err)
	}

	view.Markdown = true
	var md bytes.Buffer
	if err := passwordResetTmpl.Execute(&md, view); err != nil {
		return Email{}, fmt.Errorf("notifications: render password reset: %w", err)
	}
	var html bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &html); err != nil {
		return Email{}, fmt.Errorf("notifications: convert password reset: %w", err)
	}

	email := Email{
		To:      strings.TrimSpace(data.To),
		Subject: "Reset Your Password",
		Text:    text.String(),
		HTML:    htmlPolicy.Sanitize(html.String()),
	}
	return email, email.Validate()
}
