package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/jwalitptl/letter-api/internal/model"
)

const mailer = "Letter Management System - Confidential"

const confidentialityNotice = `
CONFIDENTIAL COMMUNICATION - DO NOT FORWARD

This email contains confidential information intended only for the named recipient(s). 
If you are not the intended recipient, please delete this email immediately and notify the sender.

FORWARDING RESTRICTIONS:
- This email may not be forwarded to any other party without explicit written permission
- Do not copy, distribute, or share the contents of this email
- Any unauthorized disclosure may result in disciplinary action

By receiving this email, you acknowledge that you understand and will comply with these confidentiality requirements.
`

var textTmpl = texttemplate.Must(texttemplate.New("text").Parse(
	`{{.Notice}}

From: {{.SenderName}} <{{.SenderEmail}}>
Department: {{.Department}}
Date: {{.Date}}
Priority: {{.PriorityLabel}}

Subject: {{.Subject}}

{{.Content}}

---
{{.Notice}}`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; border: 2px solid #dc3545; border-radius: 8px; padding: 20px;">
  <div style="background-color: #dc3545; color: white; padding: 15px; margin: -20px -20px 20px -20px; border-radius: 6px 6px 0 0; text-align: center;">
    <strong style="font-size: 16px;">&#9888;&#65039; CONFIDENTIAL COMMUNICATION - DO NOT FORWARD &#9888;&#65039;</strong>
  </div>

  <div style="background-color: #fff3cd; border: 1px solid #ffeaa7; padding: 12px; margin-bottom: 20px; border-radius: 5px;">
    <p style="margin: 0; color: #856404; font-size: 14px;">
      <strong>CONFIDENTIALITY NOTICE:</strong> This email contains confidential information intended only for the named recipient(s).
      Forwarding, copying, or distributing this email without explicit permission is strictly prohibited.
    </p>
  </div>

  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px; margin-bottom: 20px; border-left: 4px solid #007bff;">
    <p style="margin: 5px 0;"><strong>From:</strong> {{.SenderName}} &lt;{{.SenderEmail}}&gt;</p>
    <p style="margin: 5px 0;"><strong>Department:</strong> {{.Department}}</p>
    <p style="margin: 5px 0;"><strong>Date:</strong> {{.Date}}</p>
    <p style="margin: 5px 0;"><strong>Priority:</strong> <span style="color: {{.PriorityColor}}; font-weight: bold;">{{.PriorityLabel}}</span></p>
    <p style="margin: 5px 0;"><strong>Subject:</strong> {{.Subject}}</p>
    {{- if .CC}}
    <p style="margin: 5px 0;"><strong>CC:</strong> {{.CCList}}</p>
    {{- end}}
  </div>

  <div style="background-color: white; padding: 20px; border: 1px solid #dee2e6; border-radius: 5px; margin-bottom: 20px;">
    <p style="line-height: 1.6; color: #333; margin: 0;">{{range $i, $line := .ContentLines}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
  </div>

  <div style="background-color: #e9ecef; padding: 15px; border-radius: 5px; font-size: 12px; color: #6c757d; border-left: 4px solid #dc3545;">
    <p style="margin: 0 0 10px 0;"><strong>CONFIDENTIALITY REQUIREMENTS:</strong></p>
    <ul style="margin: 0; padding-left: 20px;">
      <li>Do not forward this email without explicit written permission</li>
      <li>Do not copy or distribute the contents</li>
      <li>Maintain the confidentiality of all information contained herein</li>
      <li>Any unauthorized disclosure may result in disciplinary action</li>
    </ul>
    <p style="margin: 10px 0 0 0; font-style: italic;">
      By receiving this email, you acknowledge that you understand and will comply with these confidentiality requirements.
    </p>
  </div>
</div>
`))

// Letter describes one confidential letter to be mailed.
type Letter struct {
	Sender      *model.User
	Recipient   *model.User
	CC          []string
	Subject     string
	Department  string
	Priority    model.Priority
	Content     string
	Attachments []*model.Attachment
	Date        time.Time
}

type templateData struct {
	Notice        string
	SenderName    string
	SenderEmail   string
	Department    string
	Date          string
	PriorityLabel string
	PriorityColor htmltemplate.CSS
	Subject       string
	Content       string
	ContentLines  []string
	CC            []string
	CCList        string
}

// Compose renders the confidential email for a letter. The primary
// recipient goes in To, everything in l.CC goes in Cc.
func Compose(l Letter) (*Message, error) {
	if l.Sender == nil || l.Recipient == nil {
		return nil, fmt.Errorf("sender and recipient are required")
	}
	date := l.Date
	if date.IsZero() {
		date = time.Now()
	}

	data := templateData{
		Notice:        confidentialityNotice,
		SenderName:    l.Sender.Name,
		SenderEmail:   l.Sender.Email,
		Department:    l.Department,
		Date:          date.Format("1/2/2006"),
		PriorityLabel: strings.ToUpper(string(l.Priority)),
		PriorityColor: priorityColor(l.Priority),
		Subject:       l.Subject,
		Content:       l.Content,
		ContentLines:  strings.Split(l.Content, "\n"),
		CC:            l.CC,
		CCList:        strings.Join(l.CC, ", "),
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	msg := &Message{
		From: Address{
			Name:  fmt.Sprintf("%s (%s)", l.Sender.Name, l.Department),
			Email: l.Sender.Email,
		},
		To:       []string{l.Recipient.Email},
		CC:       append([]string(nil), l.CC...),
		Subject:  "[CONFIDENTIAL] " + l.Subject,
		Headers:  confidentialHeaders(l.Priority, l.Sender.Email),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}
	for _, a := range l.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Data:        a.Data,
		})
	}
	return msg, nil
}

func confidentialHeaders(p model.Priority, senderEmail string) map[string]string {
	urgent := p == model.PriorityUrgent

	h := map[string]string{
		"X-No-Forward":                "true",
		"X-Confidential":              "true",
		"X-Sensitivity":               "Confidential",
		"X-Priority":                  "3",
		"X-MSMail-Priority":           "Normal",
		"Importance":                  "normal",
		"Disposition-Notification-To": senderEmail,
		"Return-Receipt-To":           senderEmail,
		"X-Confirm-Reading-To":        senderEmail,
		"X-Mailer":                    mailer,
	}
	if urgent {
		h["X-Priority"] = "1"
		h["X-MSMail-Priority"] = "High"
		h["Importance"] = "high"
	}
	return h
}

func priorityColor(p model.Priority) htmltemplate.CSS {
	switch p {
	case model.PriorityUrgent:
		return "#dc3545"
	case model.PriorityHigh:
		return "#fd7e14"
	default:
		return "#28a745"
	}
}
