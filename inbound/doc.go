// Package inbound ingests result callbacks posted by the hosted sign-in and
// publishing dialogs and drives the matching attempt or session.
//
// Callbacks use claim/complete/fail idempotency semantics so a replayed
// callback is acknowledged without a second delivery, while transient handler
// failures remain retryable.
package inbound
