package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// SMTPConfig configures the feedback mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends plain-text mail to a fixed recipient over SMTP with STARTTLS
// and PLAIN auth.
type Mailer struct {
	cfg  SMTPConfig
	send SendFunc
	now  func() time.Time
}

// NewMailer validates cfg and returns a Mailer.
func NewMailer(cfg SMTPConfig) (*Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.To) == "" {
		return nil, errors.New("smtp host and recipient are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender is required")
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

// Send delivers one message. ctx bounds how long the caller waits.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	msg := m.compose(subject, body)
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, []string{m.cfg.To}, msg)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send mail canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	}
}

func (m *Mailer) compose(subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.cfg.From + "\r\n")
	b.WriteString("To: " + m.cfg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)) + "\r\n")
	b.WriteString("Date: " + m.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// Feedback is a user's free-text message to the bot operators.
type Feedback struct {
	UserID   string
	Username string
	Text     string
}

// Subject returns the mail subject for the feedback.
func (f Feedback) Subject() string {
	name := f.Username
	if name == "" {
		name = f.UserID
	}
	return "Feedback from " + name
}

// Body returns the mail body for the feedback. The Translit line is an ASCII
// rendering of the text.
func (f Feedback) Body() string {
	return fmt.Sprintf("User ID: %s\nOriginal: %s\nTranslit: %s", f.UserID, f.Text, transliterate(f.Text))
}

func transliterate(s string) string {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return unidecode.Unidecode(s)
		}
	}
	return s
}
