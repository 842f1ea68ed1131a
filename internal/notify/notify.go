// Package notify sends transactional email to customers.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	texttemplate "text/template"
	"time"

	"salon-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidRecipient is returned for an address no relay could deliver to
var ErrInvalidRecipient = errors.New("invalid recipient")

// Mailer delivers one email with an HTML and a plain-text body
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html, text string) error
}

// SMTPMailer sends mail through an SMTP relay with PLAIN auth
type SMTPMailer struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer for addr (host:port); empty username disables auth
func NewSMTPMailer(addr, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{addr: addr, from: from, auth: auth, sendMail: smtp.SendMail}
}

// SendEmail builds a multipart/alternative message and hands it to the relay
func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, html, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidRecipient, to, err)
	}

	msg, err := buildMessage(m.from, rcpt, subject, html, text)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	if err := m.sendMail(m.addr, m.auth, m.from, []string{rcpt.Address}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from string, to *mail.Address, subject, html, text string) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", text},
		{"text/html; charset=UTF-8", html},
	} {
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to.String())
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "Message-ID: <%s@salon-service>\r\n", uuid.NewString())
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", w.Boundary())
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

// LogMailer only logs the emails it is asked to send
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.GetLogger()}
}

func (m *LogMailer) SendEmail(ctx context.Context, to, subject, html, text string) error {
	m.logger.Info("Email not sent, no SMTP relay configured",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

// ShippingDetails fills the shipping notification templates
type ShippingDetails struct {
	Name           string
	OrderNumber    string
	Carrier        string
	TrackingNumber string
}

var (
	shippingHTML = htmltemplate.Must(htmltemplate.New("shipping").Parse(
		`<p>Hi {{.Name}},</p>
<p>Your order <strong>{{.OrderNumber}}</strong> is on its way.</p>
{{if .TrackingNumber}}<p>Carrier: {{.Carrier}}<br>Tracking number: {{.TrackingNumber}}</p>{{end}}
<p>Thank you for shopping with us.</p>`))

	shippingText = texttemplate.Must(texttemplate.New("shipping").Parse(
		`Hi {{.Name}},

Your order {{.OrderNumber}} is on its way.
{{if .TrackingNumber}}Carrier: {{.Carrier}}
Tracking number: {{.TrackingNumber}}
{{end}}
Thank you for shopping with us.
`))
)

// ShippingEmail renders the subject and bodies of the order shipped email
func ShippingEmail(d ShippingDetails) (subject, html, text string, err error) {
	var h, t bytes.Buffer
	if err := shippingHTML.Execute(&h, d); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	if err := shippingText.Execute(&t, d); err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	return fmt.Sprintf("Your order %s has shipped", d.OrderNumber), h.String(), t.String(), nil
}
