package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/telemetry"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay using PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send delivers msg. The SMTP exchange is abandoned when ctx is done.
func (s SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mail recipient required")
	}
	if s.Host == "" || s.From == "" {
		return errors.New("smtp sender not configured")
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(port))

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.From, []string{msg.To}, compose(s.From, msg, time.Now()))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func compose(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + strings.NewReplacer("\r", "", "\n", "").Replace(msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogSender records mail in the log instead of delivering it.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	telemetry.Info("mail.logged", map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
	})
	return nil
}

// NewSender returns an SMTP sender when host is set, otherwise a LogSender.
func NewSender(host string, port int, username, password, from string) Sender {
	if strings.TrimSpace(host) == "" {
		return LogSender{}
	}
	return SMTPSender{Host: host, Port: port, Username: username, Password: password, From: from}
}

// SendBestEffort delivers msg and logs failures without returning them.
func SendBestEffort(ctx context.Context, sender Sender, msg Message) bool {
	if sender == nil {
		return false
	}
	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := sender.Send(sendCtx, msg); err != nil {
		metrics.IncMailFailure()
		telemetry.Error("mail.send_failed", map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

// Welcome is sent after registration.
func Welcome(to, name string) Message {
	return Message{To: to, Subject: "Welcome to DocFill", Body: fmt.Sprintf("Hello %s, welcome to DocFill!", name)}
}

// VerifyOTP carries an account verification code.
func VerifyOTP(to, otp string) Message {
	return Message{To: to, Subject: "Verification OTP", Body: fmt.Sprintf("Your verification OTP is %s. It expires in 10 minutes.", otp)}
}

// ResetOTP carries a password reset code.
func ResetOTP(to, otp string) Message {
	return Message{To: to, Subject: "Reset Password OTP", Body: fmt.Sprintf("Your reset password OTP is %s. It expires in 10 minutes.", otp)}
}
