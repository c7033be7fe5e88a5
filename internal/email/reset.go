package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

var resetTextTmpl = texttemplate.Must(texttemplate.New("reset_text").Parse(
	`Hello {{.Name}},

A password reset was requested for your Letter Management System account.
Open the link below to choose a new password. It expires in {{.Expiry}}.

{{.Link}}

If you did not ask for this, ignore this email; your password stays the same.
`))

var resetHTMLTmpl = htmltemplate.Must(htmltemplate.New("reset_html").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <p>Hello {{.Name}},</p>
  <p>A password reset was requested for your Letter Management System account.
  The link below expires in {{.Expiry}}.</p>
  <p><a href="{{.Link}}" style="background-color: #007bff; color: white; padding: 10px 16px; border-radius: 5px; text-decoration: none;">Reset password</a></p>
  <p style="color: #6c757d; font-size: 12px;">If you did not ask for this, ignore this email; your password stays the same.</p>
</div>`))

// PasswordReset is the input to ComposePasswordReset.
type PasswordReset struct {
	From   Address
	Name   string
	Email  string
	Link   string
	Expiry time.Duration
}

func ComposePasswordReset(r PasswordReset) (*Message, error) {
	data := struct {
		Name   string
		Link   string
		Expiry string
	}{
		Name:   r.Name,
		Link:   r.Link,
		Expiry: r.Expiry.String(),
	}

	var text, html bytes.Buffer
	if err := resetTextTmpl.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render reset text body: %w", err)
	}
	if err := resetHTMLTmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render reset html body: %w", err)
	}

	return &Message{
		From:     r.From,
		To:       []string{r.Email},
		Subject:  "Password reset",
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
