// Package notifications renders and dispatches customer e-mails.
package notifications

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidEmail is returned when an e-mail lacks a recipient or subject.
var ErrInvalidEmail = errors.New("notifications: recipient and subject are required")

// Email is a rendered message. HTML is optional; Text is always sent.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Validate checks the required fields.
func (e Email) Validate() error {
	if strings.TrimSpace(e.To) == "" || strings.TrimSpace(e.Subject) == "" {
		return ErrInvalidEmail
	}
	return nil
}

// Mailer dispatches e-mails. Implementations do not retry.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes e-mails to the log instead of delivering them. Used for local runs.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	m.logger.Info("email dispatched",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.Int("text_bytes", len(email.Text)),
		zap.Bool("html", email.HTML != ""),
	)
	return nil
}
