package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
)

// New builds the delivery backend named by cfg.Backend.
func New(cfg config.EmailConfig, log *logger.Logger) (ports.NotificationDelivery, error) {
	renderer, err := NewRenderer(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "", "log":
		return NewLogDelivery(renderer, cfg.From, log), nil
	case "smtp":
		return NewSMTPDelivery(cfg, renderer, log), nil
	}
	return nil, fmt.Errorf("unsupported email backend %q", cfg.Backend)
}

type logDelivery struct {
	renderer *Renderer
	from     string
	log      *logger.Logger
}

func NewLogDelivery(renderer *Renderer, from string, log *logger.Logger) ports.NotificationDelivery {
	return &logDelivery{renderer: renderer, from: from, log: log}
}

func (d *logDelivery) Send(_ context.Context, msg ports.Message) error {
	body, err := d.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		d.log.Errorw("mail_render_failed", "event", msg.Event, "template", msg.Template, "error", err)
		return err
	}
	d.log.Infow("mail_send_ok",
		"backend", "log",
		"event", msg.Event,
		"from", d.from,
		"to", msg.Recipients,
		"subject", msg.Subject,
		"body", body,
	)
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpDelivery struct {
	addr     string
	auth     smtp.Auth
	from     string
	renderer *Renderer
	log      *logger.Logger
	send     sendFunc
	now      func() time.Time
}

func NewSMTPDelivery(cfg config.EmailConfig, renderer *Renderer, log *logger.Logger) ports.NotificationDelivery {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &smtpDelivery{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:     auth,
		from:     cfg.From,
		renderer: renderer,
		log:      log,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

func (d *smtpDelivery) Send(ctx context.Context, msg ports.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.Recipients) == 0 {
		return nil
	}
	body, err := d.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		d.log.Errorw("mail_render_failed", "event", msg.Event, "template", msg.Template, "error", err)
		return err
	}
	raw := d.compose(msg, body)
	if err := d.send(d.addr, d.auth, d.from, msg.Recipients, raw); err != nil {
		d.log.Errorw("mail_send_failed", "backend", "smtp", "event", msg.Event, "to", msg.Recipients, "error", err)
		return err
	}
	d.log.Infow("mail_send_ok", "backend", "smtp", "event", msg.Event, "to", msg.Recipients, "subject", msg.Subject)
	return nil
}

func (d *smtpDelivery) compose(msg ports.Message, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", d.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	if msg.Reply != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.Reply)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", d.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
