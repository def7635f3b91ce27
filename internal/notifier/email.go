package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/amishk599/boardwatch/internal/model"
)

//go:embed templates/email.html
var emailTemplateRaw string

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"inc":          func(i int) int { return i + 1 },
	"applyByEmail": applyByEmail,
	"mailto": func(r model.JobRecord) string {
		return "mailto:" + r.ApplicationTarget + "?subject=" + url.PathEscape("Application for "+r.Title)
	},
}).Parse(emailTemplateRaw))

func applyByEmail(r model.JobRecord) bool {
	return r.ApplicationType == "email" && strings.Contains(r.ApplicationTarget, "@")
}

// Ensure EmailNotifier implements model.Notifier.
var _ model.Notifier = (*EmailNotifier)(nil)

// EmailOptions holds SMTP delivery settings.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends one HTML digest email per run over SMTP with STARTTLS.
type EmailNotifier struct {
	opts     EmailOptions
	logger   *slog.Logger
	sendMail sendMailFunc
	now      func() time.Time
}

// NewEmailNotifier returns a notifier that emails a digest of new records.
func NewEmailNotifier(opts EmailOptions, logger *slog.Logger) *EmailNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	return &EmailNotifier{
		opts:     opts,
		logger:   logger,
		sendMail: sendMailContext,
		now:      time.Now,
	}
}

// Notify composes and sends a single email listing every record.
// An empty batch sends nothing.
func (n *EmailNotifier) Notify(ctx context.Context, records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}

	msg, err := n.compose(DigestFrom(ctx), records)
	if err != nil {
		return &model.NotificationError{Channel: "email", Err: err}
	}

	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	var auth smtp.Auth
	if n.opts.Username != "" {
		auth = smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	}

	if err := n.sendMail(ctx, addr, auth, n.opts.From, n.opts.To, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The connection is closed on cancellation; a server that had
			// already accepted the final DATA terminator may still deliver.
			n.logger.Warn("email send aborted, delivery may still complete if the server accepted the message",
				"addr", addr, "error", ctxErr)
			return &model.NotificationError{Channel: "email", Err: ctxErr}
		}
		return &model.NotificationError{Channel: "email", Err: fmt.Errorf("smtp send via %s: %w", addr, err)}
	}

	n.logger.Info("email sent", "to", strings.Join(n.opts.To, ","), "jobs", len(records))
	return nil
}

type emailData struct {
	Keywords string
	Location string
	Summary  string
	Sent     string
	Records  []model.JobRecord
}

// compose builds a multipart/alternative message with plain text and HTML parts.
func (n *EmailNotifier) compose(d Digest, records []model.JobRecord) ([]byte, error) {
	now := n.now()

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(Subject(d, len(records)))
	h.SetAddressList("From", []*mail.Address{{Address: n.opts.From}})
	to := make([]*mail.Address, 0, len(n.opts.To))
	for _, addr := range n.opts.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)

	var htmlBody bytes.Buffer
	if err := emailTemplate.Execute(&htmlBody, emailData{
		Keywords: d.Keywords,
		Location: d.Location,
		Summary:  d.Summary,
		Sent:     now.Format("January 02, 2006 at 03:04 PM"),
		Records:  records,
	}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	if err := writePart(iw, "text/plain", plainBody(d, records)); err != nil {
		return nil, err
	}
	if err := writePart(iw, "text/html", htmlBody.String()); err != nil {
		return nil, err
	}

	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func plainBody(d Digest, records []model.JobRecord) string {
	var b strings.Builder
	b.WriteString(Subject(d, len(records)))
	b.WriteString("\n\n")
	if d.Summary != "" {
		b.WriteString(d.Summary)
		b.WriteString("\n\n")
	}
	for i, r := range records {
		fmt.Fprintf(&b, "%d. %s\n   %s | %s\n", i+1, r.Title, orNA(r.Company), orNA(r.Location))
		if r.Salary != "" {
			fmt.Fprintf(&b, "   Salary: %s\n", r.Salary)
		}
		if applyByEmail(r) {
			fmt.Fprintf(&b, "   Apply by email: %s\n   Details: %s\n\n", r.ApplicationTarget, r.URL)
		} else {
			fmt.Fprintf(&b, "   Apply: %s\n\n", r.ApplyTarget())
		}
	}
	return b.String()
}

// sendMailContext is smtp.SendMail bound to ctx: the dial honors ctx and the
// connection is closed as soon as ctx ends, aborting any transaction in flight.
func sendMailContext(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}
