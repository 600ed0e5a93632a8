package notify

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/smtp"
	"strings"

	"github.com/dungla2011/monitor-2025-sub000/internal/config"
	"github.com/dungla2011/monitor-2025-sub000/internal/secret"
)

// EmailTransport sends HTML+plain-text multipart mail (§4.5 "Email").
// It chooses an account at random from the configured pool and decrypts
// its opaque password just before use.
type EmailTransport struct {
	cfg *config.SMTPConfig
	box *secret.Box
}

// NewEmailTransport creates an email transport. box decrypts the
// configured account passwords, which are stored as opaque strings
// (§9 Security).
func NewEmailTransport(cfg *config.SMTPConfig, box *secret.Box) *EmailTransport {
	return &EmailTransport{cfg: cfg, box: box}
}

// Channel implements Transport.
func (t *EmailTransport) Channel() string { return "email" }

func (t *EmailTransport) pickAccount() (config.SMTPAccount, error) {
	if len(t.cfg.Accounts) == 0 {
		return config.SMTPAccount{}, fmt.Errorf("no SMTP accounts configured")
	}
	return t.cfg.Accounts[rand.Intn(len(t.cfg.Accounts))], nil
}

func composeEmailSubject(event Event) string {
	if event.Kind == KindRecovery {
		return fmt.Sprintf("[Recovered] %s is back up", event.MonitorName)
	}
	return fmt.Sprintf("[Alert] %s is down", event.MonitorName)
}

func composeEmailBody(event Event) (plain, html string) {
	if event.Kind == KindRecovery {
		plain = fmt.Sprintf("%s (%s) has recovered.\nResponse time: %.0fms\n",
			event.MonitorName, event.URL, derefOrZero(event.ResponseTimeMs))
		html = fmt.Sprintf("<p><b>%s</b> (%s) has recovered.</p><p>Response time: %.0fms</p>",
			event.MonitorName, event.URL, derefOrZero(event.ResponseTimeMs))
		return
	}
	plain = fmt.Sprintf("%s (%s) is down.\n%s\nConsecutive failures: %d\n",
		event.MonitorName, event.URL, event.Message, event.ConsecutiveCount)
	html = fmt.Sprintf("<p><b>%s</b> (%s) is down.</p><p>%s</p><p>Consecutive failures: %d</p>",
		event.MonitorName, event.URL, event.Message, event.ConsecutiveCount)
	return
}

func buildMultipartMessage(from, fromName, to, subject, plain, html string) []byte {
	boundary := "monitor-service-boundary"
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", fromName, from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(plain)
	buf.WriteString("\r\n\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	buf.WriteString(html)
	buf.WriteString("\r\n\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// Send delivers event to the recipient named by alertConfig (the target
// email address, §6 "email: a single target address").
func (t *EmailTransport) Send(ctx context.Context, alertConfig string, event Event) error {
	to := strings.TrimSpace(alertConfig)
	if to == "" {
		return fmt.Errorf("email: empty recipient")
	}

	account, err := t.pickAccount()
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	password, err := t.box.Open(account.Password)
	if err != nil {
		return fmt.Errorf("email: failed to open account credential: %w", err)
	}

	subject := composeEmailSubject(event)
	plain, html := composeEmailBody(event)
	message := buildMultipartMessage(account.Email, t.cfg.FromName, to, subject, plain, html)

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	auth := smtp.PlainAuth("", account.Email, password, t.cfg.Host)

	return withBackoffRetry(ctx, "email", 3, func(ctx context.Context) (bool, error) {
		err := smtp.SendMail(addr, auth, account.Email, []string{to}, message)
		if err != nil {
			return true, err
		}
		return false, nil
	})
}
