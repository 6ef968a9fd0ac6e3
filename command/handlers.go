package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-engage/core"
)

type WorkflowService interface {
	RequestAuthentication(ctx context.Context, req core.AuthenticationRequest) (*core.AuthAttempt, error)
	RequestPublishing(ctx context.Context, req core.PublishingRequest) (*core.PublishSession, error)
	ShowDialog(ctx context.Context, req core.DialogRequest) error
	CancelAuthentication(ctx context.Context) (int, error)
	CancelPublishing(ctx context.Context) (int, error)
}

type RequestAuthenticationCommand struct {
	service WorkflowService
}

func NewRequestAuthenticationCommand(service WorkflowService) *RequestAuthenticationCommand {
	return &RequestAuthenticationCommand{service: service}
}

// Execute stores the started *core.AuthAttempt. When the dialog cannot be
// shown the configuration observers are notified and the error is returned.
func (c *RequestAuthenticationCommand) Execute(ctx context.Context, msg RequestAuthenticationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authentication service is required")
	}
	out, err := c.service.RequestAuthentication(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestPublishingCommand struct {
	service WorkflowService
}

func NewRequestPublishingCommand(service WorkflowService) *RequestPublishingCommand {
	return &RequestPublishingCommand{service: service}
}

func (c *RequestPublishingCommand) Execute(ctx context.Context, msg RequestPublishingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: publishing service is required")
	}
	out, err := c.service.RequestPublishing(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ShowDialogCommand struct {
	service WorkflowService
}

func NewShowDialogCommand(service WorkflowService) *ShowDialogCommand {
	return &ShowDialogCommand{service: service}
}

func (c *ShowDialogCommand) Execute(ctx context.Context, msg ShowDialogMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dialog service is required")
	}
	return c.service.ShowDialog(ctx, msg.Request)
}

type CancelAuthenticationCommand struct {
	service WorkflowService
}

func NewCancelAuthenticationCommand(service WorkflowService) *CancelAuthenticationCommand {
	return &CancelAuthenticationCommand{service: service}
}

func (c *CancelAuthenticationCommand) Execute(ctx context.Context, _ CancelAuthenticationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authentication service is required")
	}
	canceled, err := c.service.CancelAuthentication(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, CancelResult{Canceled: canceled})
	return nil
}

type CancelPublishingCommand struct {
	service WorkflowService
}

func NewCancelPublishingCommand(service WorkflowService) *CancelPublishingCommand {
	return &CancelPublishingCommand{service: service}
}

func (c *CancelPublishingCommand) Execute(ctx context.Context, _ CancelPublishingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: publishing service is required")
	}
	canceled, err := c.service.CancelPublishing(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, CancelResult{Canceled: canceled})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
