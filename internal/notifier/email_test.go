package notifier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/amishk599/boardwatch/internal/model"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestEmail(send sendMailFunc) *EmailNotifier {
	n := NewEmailNotifier(EmailOptions{
		Host:     "smtp.example.com",
		Username: "bot@example.com",
		Password: "secret",
		To:       []string{"me@example.com"},
	}, discardLogger())
	n.sendMail = send
	n.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return n
}

// readParts returns the subject and the bodies keyed by content type.
func readParts(t *testing.T, raw []byte) (string, map[string]string) {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	subject, err := mr.Header.Subject()
	if err != nil {
		t.Fatalf("subject: %v", err)
	}

	parts := make(map[string]string)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, _ := io.ReadAll(p.Body)
		parts[ct] = string(b)
	}
	return subject, parts
}

func TestEmailNotifier_SendsDigest(t *testing.T) {
	var got capturedMail
	n := newTestEmail(func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got = capturedMail{addr: addr, from: from, to: to, msg: msg}
		return nil
	})

	records := []model.JobRecord{
		sampleRecord("Go Engineer", "Acme"),
		{
			Title: "Platform Engineer", Company: "Beta", URL: "https://beta.example/jobs/1",
			ApplicationType: "email", ApplicationTarget: "hiring@beta.example",
		},
	}
	ctx := WithDigest(context.Background(), Digest{Keywords: "golang", Location: "Remote", Summary: "Acme looks strongest."})

	if err := n.Notify(ctx, records); err != nil {
		t.Fatalf("Notify() = %v", err)
	}

	if got.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q, want default submission port", got.addr)
	}
	if got.from != "bot@example.com" {
		t.Errorf("from = %q, want username fallback", got.from)
	}
	if len(got.to) != 1 || got.to[0] != "me@example.com" {
		t.Errorf("to = %v", got.to)
	}

	subject, parts := readParts(t, got.msg)
	if subject != "2 New Job(s) Found - golang" {
		t.Errorf("subject = %q", subject)
	}

	htmlPart := parts["text/html"]
	for _, want := range []string{"Go Engineer", "Acme looks strongest.", "mailto:hiring@beta.example", "Apply on Website"} {
		if !strings.Contains(htmlPart, want) {
			t.Errorf("html part missing %q", want)
		}
	}
	if !strings.Contains(parts["text/plain"], "Apply by email: hiring@beta.example") {
		t.Errorf("plain part = %q", parts["text/plain"])
	}
}

func TestEmailNotifier_EmptyBatchSendsNothing(t *testing.T) {
	called := false
	n := newTestEmail(func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	})
	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("Notify(nil) = %v", err)
	}
	if called {
		t.Error("smtp send called for empty batch")
	}
}

func TestEmailNotifier_SendFailureIsNotificationError(t *testing.T) {
	n := newTestEmail(func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		return errors.New("535 authentication failed")
	})

	err := n.Notify(context.Background(), []model.JobRecord{sampleRecord("Go Engineer", "Acme")})
	var nErr *model.NotificationError
	if !errors.As(err, &nErr) || nErr.Channel != "email" {
		t.Fatalf("expected email NotificationError, got %v", err)
	}
}

func TestEmailNotifier_ContextCancelled(t *testing.T) {
	n := newTestEmail(func(ctx context.Context, _ string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.Notify(ctx, []model.JobRecord{sampleRecord("Go Engineer", "Acme")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEmailNotifier_TimeoutClosesSMTPConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// The server greets, then never answers EHLO.
	closed := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("220 smtp.test ESMTP\r\n"))
		io.Copy(io.Discard, conn)
		close(closed)
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	portNum, _ := strconv.Atoi(port)
	n := NewEmailNotifier(EmailOptions{
		Host: "127.0.0.1",
		Port: portNum,
		From: "bot@example.com",
		To:   []string{"me@example.com"},
	}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = n.Notify(ctx, []model.JobRecord{sampleRecord("Go Engineer", "Acme")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("SMTP connection still open after the send was abandoned")
	}
}
