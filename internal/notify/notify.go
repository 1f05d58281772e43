// Package notify avisa al principal cuando su cuenta queda bloqueada.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

// LockoutNotice describe un bloqueo recién aplicado.
type LockoutNotice struct {
	Username string
	Email    string
	Until    time.Time
	Minutes  int
}

// LockoutNotifier recibe la transición a Locked. Un error se loguea y no
// cambia el resultado del login.
type LockoutNotifier interface {
	NotifyLocked(ctx context.Context, n LockoutNotice) error
}

// Dialer es la parte de *mail.Dialer que usamos.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

var ErrNoRecipient = errors.New("notify: recipient has no email")

type SMTPNotifier struct {
	from   string
	dialer Dialer
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // sólo dev
	}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}
	return &SMTPNotifier{from: cfg.From, dialer: d}
}

// NewSMTPNotifierWithDialer permite inyectar el dialer (tests).
func NewSMTPNotifierWithDialer(from string, d Dialer) *SMTPNotifier {
	return &SMTPNotifier{from: from, dialer: d}
}

func (s *SMTPNotifier) NotifyLocked(ctx context.Context, n LockoutNotice) error {
	log := logger.From(ctx).With(logger.Component("notify.lockout"), logger.Username(n.Username))
	if strings.TrimSpace(n.Email) == "" {
		return ErrNoRecipient
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", "Your account has been temporarily locked")
	m.SetBody("text/plain", lockoutText(n))

	if err := s.dialer.DialAndSend(m); err != nil {
		log.Warn("lockout notice not sent", logger.String("to", maskEmail(n.Email)), logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info("lockout notice sent", logger.String("to", maskEmail(n.Email)))
	return nil
}

func lockoutText(n LockoutNotice) string {
	return fmt.Sprintf(
		"Hi %s,\n\nWe detected too many failed sign-in attempts on your account.\n"+
			"Sign-in is blocked until %s (about %d minute(s)).\n\n"+
			"If this wasn't you, consider changing your password once the lock expires.\n",
		n.Username, n.Until.UTC().Format(time.RFC1123), n.Minutes)
}

// maskEmail deja la primera letra del usuario y del dominio: a…@e….com
func maskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	if head, rest, ok := strings.Cut(dom, "."); ok && len(head) > 1 {
		dom = head[:1] + "…." + rest
	}
	return user + "@" + dom
}
