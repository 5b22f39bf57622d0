// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package notify_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/notify"
	"github.com/parleyhq/parley/pkg/errutil"
)

// flakySink fails the first failures calls, then succeeds.
type flakySink struct {
	failures int32
	calls    atomic.Int32
}

func (s *flakySink) Send(_ context.Context, _ auth.Notification) error {
	if s.calls.Add(1) <= s.failures {
		return oops.Errorf("transport unavailable")
	}
	return nil
}

func TestLogSink_Send(t *testing.T) {
	sink := notify.NewLogSink(nil)

	err := sink.Send(context.Background(), auth.Notification{
		Recipient: "alice@example.com",
		Subject:   "Password reset",
		Body:      "click here",
	})
	assert.NoError(t, err)
}

func TestRetryingSink_RecoverFromTransientFailure(t *testing.T) {
	inner := &flakySink{failures: 2}
	sink, err := notify.NewRetryingSink(inner)
	require.NoError(t, err)

	err = sink.Send(context.Background(), auth.Notification{Recipient: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingSink_ExhaustsAttempts(t *testing.T) {
	inner := &flakySink{failures: 100}
	sink, err := notify.NewRetryingSink(inner)
	require.NoError(t, err)

	err = sink.Send(context.Background(), auth.Notification{Recipient: "alice@example.com"})
	errutil.AssertErrorCode(t, err, "NOTIFY_SEND_FAILED")
	errutil.AssertErrorContext(t, err, "recipient", "alice@example.com")
	assert.Equal(t, int32(4), inner.calls.Load(), "initial attempt plus three retries")
}

func TestNewRetryingSink_RequiresInner(t *testing.T) {
	_, err := notify.NewRetryingSink(nil)
	assert.Error(t, err)
}
