package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "login"}}<div>
    <h1>{{.Site}}</h1>
    <p>
        Enter the following code to authenticate your login: <strong>{{.Code}}</strong><br /><br />
        - {{.Author}}
    </p>
</div>{{end}}

{{define "change-code"}}<div>
    <h1>{{.Site}}</h1>
    <p>
        Enter the following code to verify your new email: <strong>{{.Code}}</strong><br /><br />
        If you did not request this email change, or you would otherwise like to discard this
        token, then you may ignore this email.<br /><br />
        - {{.Author}}
    </p>
</div>{{end}}

{{define "change-notice"}}<div>
    <h1>{{.Site}}</h1>
    <p>
        Hello. You are receiving this email because a change in the email
        address attached to your account to {{.NewEmail}} has been requested.<br /><br />
        If you did not request this change, then please reply to this email.<br /><br />
        - {{.Author}}
    </p>
</div>{{end}}
`))

// Site identifies the service in subjects and signatures
type Site struct {
	Title  string
	Author string
}

// Mailer renders the flow emails and hands them to a Sender
type Mailer struct {
	sender Sender
	site   Site
}

// NewMailer creates a mailer
func NewMailer(sender Sender, site Site) *Mailer {
	return &Mailer{sender: sender, site: site}
}

type templateData struct {
	Site     string
	Author   string
	Code     string
	NewEmail string
}

// SendLoginCode sends the pass-code that finishes a login
func (m *Mailer) SendLoginCode(ctx context.Context, to, passCode string) error {
	return m.send(ctx, to, "Finish Login", "login", templateData{Code: passCode})
}

// SendEmailChangeCode sends the pass-code that confirms a new address
func (m *Mailer) SendEmailChangeCode(ctx context.Context, to, passCode string) error {
	return m.send(ctx, to, "Verify Email Change", "change-code", templateData{Code: passCode})
}

// SendEmailChangeNotice tells the current address that a change was requested
func (m *Mailer) SendEmailChangeNotice(ctx context.Context, to, newEmail string) error {
	return m.send(ctx, to, "Email Change Requested", "change-notice", templateData{NewEmail: newEmail})
}

func (m *Mailer) send(ctx context.Context, to, subject, name string, data templateData) error {
	data.Site = m.site.Title
	data.Author = m.site.Author

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s email: %w", name, err)
	}
	if err := m.sender.Send(ctx, to, m.site.Title+" - "+subject, buf.String()); err != nil {
		return fmt.Errorf("failed to send %s email: %w", name, err)
	}
	return nil
}
