// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package auth

import "context"

// Notification is a message carrying a token or link to a recipient.
// Transport (email, in-app) is the integrating system's choice.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// NotificationSink delivers notifications. Delivery failure must never roll
// back the token issuance it announces; callers degrade to logging.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}
