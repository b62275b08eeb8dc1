// Package notify delivers owner emails over SMTP, or to the log when no
// SMTP server is configured.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// SMTPConfig is the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer sends templated HTML mail through go-mail.
type Mailer struct {
	client *mail.Client
	from   string
}

func NewMailer(cfg SMTPConfig) (*Mailer, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From}, nil
}

func (m *Mailer) send(ctx context.Context, to, subject, tpl string, data any) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("from %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to %q: %w", to, err)
	}
	msg.Subject(subject)
	if err := msg.SetBodyHTMLTemplate(templates.Lookup(tpl), data); err != nil {
		return fmt.Errorf("render %s: %w", tpl, err)
	}
	return m.client.DialAndSendWithContext(ctx, msg)
}

func (m *Mailer) ScanComplete(ctx context.Context, to string, e domain.ScanCompleteEmail) error {
	return m.send(ctx, to, scanCompleteSubject(e), "scan_complete", e)
}

func (m *Mailer) ScanError(ctx context.Context, to string, e domain.ScanErrorEmail) error {
	return m.send(ctx, to, fmt.Sprintf("Accessibility scan failed: %s", e.URL), "scan_error", e)
}

func (m *Mailer) ReportReady(ctx context.Context, to string, e domain.ReportReadyEmail) error {
	return m.send(ctx, to, fmt.Sprintf("Your report is ready: %s", e.Title), "report_ready", e)
}

func scanCompleteSubject(e domain.ScanCompleteEmail) string {
	return fmt.Sprintf("Accessibility scan complete: %s (%d issues, risk %d)", e.URL, e.Counts.Total, e.RiskScore)
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l LogNotifier) ScanComplete(_ context.Context, to string, e domain.ScanCompleteEmail) error {
	l.logger().Info("email suppressed", "kind", "scan_complete", "to", to, "subject", scanCompleteSubject(e))
	return nil
}

func (l LogNotifier) ScanError(_ context.Context, to string, e domain.ScanErrorEmail) error {
	l.logger().Info("email suppressed", "kind", "scan_error", "to", to, "url", e.URL, "error", e.Error)
	return nil
}

func (l LogNotifier) ReportReady(_ context.Context, to string, e domain.ReportReadyEmail) error {
	l.logger().Info("email suppressed", "kind", "report_ready", "to", to, "title", e.Title, "link", e.DownloadURL)
	return nil
}
