// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package notify provides NotificationSink implementations. The production
// deployment fronts an SMTP relay; this package ships a structured-log sink
// for development and a retrying decorator for flaky transports.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/parleyhq/parley/internal/auth"
)

// LogSink writes notifications to the logger instead of delivering them.
// Useful in development, where the reset link in the log is the mail.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send logs the notification.
func (s *LogSink) Send(_ context.Context, n auth.Notification) error {
	s.logger.Info("notification",
		"recipient", n.Recipient,
		"subject", n.Subject,
		"body", n.Body,
	)
	return nil
}

// Retry policy for the retrying sink.
const (
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
	defaultTimeout  = 10 * time.Second
)

// RetryingSink decorates another sink with bounded exponential backoff. The
// overall attempt is capped by a timeout so a dead transport can't hold an
// issuance path hostage.
type RetryingSink struct {
	inner    auth.NotificationSink
	attempts uint64
	backoff  time.Duration
	timeout  time.Duration
}

// NewRetryingSink creates a RetryingSink around inner.
func NewRetryingSink(inner auth.NotificationSink) (*RetryingSink, error) {
	if inner == nil {
		return nil, oops.Errorf("inner notification sink is required")
	}
	return &RetryingSink{
		inner:    inner,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		timeout:  defaultTimeout,
	}, nil
}

// Send delivers through the inner sink, retrying transient failures.
func (s *RetryingSink) Send(ctx context.Context, n auth.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(s.attempts, retry.NewExponential(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if sendErr := s.inner.Send(ctx, n); sendErr != nil {
			return retry.RetryableError(sendErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("recipient", n.Recipient).
			Wrap(err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ auth.NotificationSink = (*LogSink)(nil)
	_ auth.NotificationSink = (*RetryingSink)(nil)
)
