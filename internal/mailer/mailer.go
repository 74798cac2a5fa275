package mailer

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"gopkg.in/mail.v2"
)

//go:embed "templates"
var templateFS embed.FS

// The Mailer struct contains a mail.Dialer instance (used to connect to a
// SMTP server), the sender information for emails, and the parsed templates.
type Mailer struct {
	dialer    *mail.Dialer
	sender    string
	templates *template.Template
	retries   int
	backoff   time.Duration
}

// New initializes a new mail.Dialer instance with the given SMTP server settings
// and a 5-second timeout. All templates are parsed once up front.
func New(host string, port int, username, password, sender string) (*Mailer, error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second
	return &Mailer{
		dialer:    dialer,
		sender:    sender,
		templates: tmpl,
		retries:   3,
		backoff:   time.Second,
	}, nil
}

// message renders the subject, plain and html parts of templateFile.
func (m *Mailer) message(recipient, templateFile string, data any) (*mail.Message, error) {
	tmpl := m.templates
	subject := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subject, templateFile+":subject", data); err != nil {
		return nil, err
	}
	plainBody := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(plainBody, templateFile+":plainBody", data); err != nil {
		return nil, err
	}
	htmlBody := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(htmlBody, templateFile+":htmlBody", data); err != nil {
		return nil, err
	}
	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject.String())
	msg.SetBody("text/plain", plainBody.String())
	msg.AddAlternative("text/html", htmlBody.String())
	return msg, nil
}

// Send renders the named template with data and delivers it to recipient,
// retrying up to three times before giving up.
func (m *Mailer) Send(recipient, templateFile string, data any) error {
	msg, err := m.message(recipient, templateFile, data)
	if err != nil {
		return err
	}
	for i := 1; i <= m.retries; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}
		if i < m.retries {
			time.Sleep(m.backoff)
		}
	}
	return err
}
