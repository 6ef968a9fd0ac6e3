package command

import (
	"strings"

	"github.com/goliatone/go-engage/core"
)

const (
	TypeRequestAuthentication = "engage.command.authentication.request"
	TypeRequestPublishing     = "engage.command.publishing.request"
	TypeShowDialog            = "engage.command.dialog.show"
	TypeCancelAuthentication  = "engage.command.authentication.cancel"
	TypeCancelPublishing      = "engage.command.publishing.cancel"
)

type RequestAuthenticationMessage struct {
	Request core.AuthenticationRequest
}

func (RequestAuthenticationMessage) Type() string { return TypeRequestAuthentication }

// Validate only checks the message shape. Token URL problems surface as
// DialogFailedToShow notifications.
func (m RequestAuthenticationMessage) Validate() error {
	provider := string(m.Request.Provider)
	if provider != "" && strings.TrimSpace(provider) == "" {
		return commandValidationError("provider", "provider must not be blank")
	}
	if strings.ContainsAny(strings.TrimSpace(provider), " \t\n") {
		return commandValidationError("provider", "provider must be a single name")
	}
	return nil
}

// RequestPublishingMessage has no Validate. A missing or invalid activity is
// reported to publishing observers instead of rejected here.
type RequestPublishingMessage struct {
	Request core.PublishingRequest
}

func (RequestPublishingMessage) Type() string { return TypeRequestPublishing }

type ShowDialogMessage struct {
	Request core.DialogRequest
}

func (ShowDialogMessage) Type() string { return TypeShowDialog }

func (m ShowDialogMessage) Validate() error {
	if strings.TrimSpace(string(m.Request.Kind)) == "" {
		return commandValidationError("kind", "dialog kind is required")
	}
	return commandWrapValidation(m.Request.Validate(), "command: invalid dialog request")
}

type CancelAuthenticationMessage struct{}

func (CancelAuthenticationMessage) Type() string { return TypeCancelAuthentication }

type CancelPublishingMessage struct{}

func (CancelPublishingMessage) Type() string { return TypeCancelPublishing }

// CancelResult reports how many pending workflows a cancel command ended.
type CancelResult struct {
	Canceled int
}
