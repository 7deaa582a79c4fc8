package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

func (s *EmailService) send(emailType, to, subject, body, link string) error {
	if s.isDev {
		slog.Info("email sent (dev mode)", "type", emailType, "to", to, "subject", subject, "url", link)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err == nil {
		slog.Info("email sent", "type", emailType, "to", to)
	}
	return err
}

// SendVerificationEmail delivers the raw email-verification token. The raw
// value exists only in this email and in transit.
func (s *EmailService) SendVerificationEmail(name, email, token string) error {
	verificationLink := fmt.Sprintf("%s/verify-email?token=%s", s.appURL, token)
	subject, body := verificationEmailTemplate(name, verificationLink, s.appName)

	return s.send("email_verify", email, subject, body, verificationLink)
}

// SendPasswordResetEmail delivers the raw password-reset token.
func (s *EmailService) SendPasswordResetEmail(email, name, token string) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.appURL, token)
	subject, body := passwordResetEmailTemplate(name, resetLink, s.appName)

	return s.send("password_reset", email, subject, body, resetLink)
}

func (s *EmailService) SendPasswordResetConfirmationEmail(email, name string) error {
	subject, body := passwordResetConfirmationTemplate(name, s.appName, s.fromEmail)

	return s.send("password_reset_confirmation", email, subject, body, "")
}

func (s *EmailService) SendWelcomeEmail(email, name string) error {
	dashboardURL := fmt.Sprintf("%s/dashboard", s.appURL)
	subject, body := welcomeEmailTemplate(name, dashboardURL, s.appName)

	return s.send("welcome", email, subject, body, dashboardURL)
}
