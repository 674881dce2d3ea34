package services

import (
	"fmt"
	"os"
	"strconv"

	gomail "gopkg.in/gomail.v2"
)

// Mailer sends transactional email. All sends are best-effort: callers log
// failures and carry on, so implementations must never panic.
type Mailer interface {
	SendWelcome(to string, name string) error
	SendPasswordReset(to string, name string, resetToken string) error
	SendVerificationCreated(to string, name string, verificationType string, verificationID uint, paymentURL string) error
	SendPaymentConfirmed(to string, name string, verificationType string, verificationID uint) error
}

// SMTPMailer delivers mail over plain SMTP.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPMailerFromEnv builds a mailer from SMTP_HOST, SMTP_PORT, SMTP_USER,
// SMTP_PASS and SMTP_FROM.
func NewSMTPMailerFromEnv() *SMTPMailer {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil || port == 0 {
		port = 587
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "no-reply@propvet.com"
	}
	return &SMTPMailer{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     port,
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASS"),
		From:     from,
	}
}

func (m *SMTPMailer) send(to, subject, text, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	if html != "" {
		msg.AddAlternative("text/html", html)
	}

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}

func (m *SMTPMailer) SendWelcome(to, name string) error {
	subject := "Welcome to Propvet"
	text := fmt.Sprintf("Hello %s,\n\nWelcome to Propvet. You can now request verification for any property before you commit to it.\n\nThe Propvet Team", name)
	html := fmt.Sprintf("<p>Hello %s,</p><p>Welcome to <strong>Propvet</strong>. You can now request verification for any property before you commit to it.</p><p>The Propvet Team</p>", name)
	return m.send(to, subject, text, html)
}

func (m *SMTPMailer) SendPasswordReset(to, name, resetToken string) error {
	subject := "Reset your Propvet password"
	text := fmt.Sprintf("Hello %s,\n\nUse the token below to reset your password. It expires in 10 minutes.\n\n%s\n\nIf you did not request this, ignore this email.", name, resetToken)
	html := fmt.Sprintf("<p>Hello %s,</p><p>Use the token below to reset your password. It expires in 10 minutes.</p><p><code>%s</code></p><p>If you did not request this, ignore this email.</p>", name, resetToken)
	return m.send(to, subject, text, html)
}

func (m *SMTPMailer) SendVerificationCreated(to, name, verificationType string, verificationID uint, paymentURL string) error {
	subject := "Your property verification request has been created"
	text := fmt.Sprintf("Hello %s,\n\nYour %s verification request #%d has been created. Complete your payment to start the review:\n\n%s\n\nThe Propvet Team", name, verificationType, verificationID, paymentURL)
	html := fmt.Sprintf("<p>Hello %s,</p><p>Your <strong>%s</strong> verification request #%d has been created. Complete your payment to start the review:</p><p><a href=\"%s\">Pay now</a></p><p>The Propvet Team</p>", name, verificationType, verificationID, paymentURL)
	return m.send(to, subject, text, html)
}

func (m *SMTPMailer) SendPaymentConfirmed(to, name, verificationType string, verificationID uint) error {
	subject := "Payment confirmed for your verification request"
	text := fmt.Sprintf("Hello %s,\n\nWe have received your payment for %s verification request #%d. You can now upload your supporting documents; our team will begin the review.\n\nThe Propvet Team", name, verificationType, verificationID)
	html := fmt.Sprintf("<p>Hello %s,</p><p>We have received your payment for <strong>%s</strong> verification request #%d. You can now upload your supporting documents; our team will begin the review.</p><p>The Propvet Team</p>", name, verificationType, verificationID)
	return m.send(to, subject, text, html)
}
