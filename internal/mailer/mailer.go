// Package mailer sends the transactional emails: address verification and
// password reset.
package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// Mailer delivers account emails. Implementations must not block on retries;
// callers treat delivery as best effort.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, username, link string) error
	SendPasswordResetEmail(ctx context.Context, to, username, link string) error
}

// Resend delivers mail through the Resend API.
type Resend struct {
	client *resend.Client
	from   string
}

// NewResend builds a Resend-backed mailer.
func NewResend(apiKey, from string) *Resend {
	return &Resend{client: resend.NewClient(apiKey), from: from}
}

func (r *Resend) send(ctx context.Context, to, subject, html string) error {
	_, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("sending %q to %s: %w", subject, to, err)
	}
	return nil
}

func (r *Resend) SendVerificationEmail(ctx context.Context, to, username, link string) error {
	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>Confirm your email address to finish setting up your account:</p><p><a href="%s">Verify email</a></p><p>If you did not sign up, ignore this message.</p>`,
		username, link,
	)
	return r.send(ctx, to, "Verify your email", html)
}

func (r *Resend) SendPasswordResetEmail(ctx context.Context, to, username, link string) error {
	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>We received a request to reset your password. The link below expires in one hour:</p><p><a href="%s">Reset password</a></p><p>If you did not request this, you can ignore this message.</p>`,
		username, link,
	)
	return r.send(ctx, to, "Reset your password", html)
}

// LogOnly records would-be sends to the log. Used when no API key is set,
// typically local development.
type LogOnly struct {
	Log zerolog.Logger
}

func (l *LogOnly) SendVerificationEmail(_ context.Context, to, username, link string) error {
	l.Log.Info().Str("to", to).Str("username", username).Str("link", link).Msg("verification email (not sent)")
	return nil
}

func (l *LogOnly) SendPasswordResetEmail(_ context.Context, to, username, link string) error {
	l.Log.Info().Str("to", to).Str("username", username).Str("link", link).Msg("password reset email (not sent)")
	return nil
}
