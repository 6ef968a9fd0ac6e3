package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-engage/core"
)

var (
	_ gocmd.Commander[RequestAuthenticationMessage] = (*RequestAuthenticationCommand)(nil)
	_ gocmd.Commander[RequestPublishingMessage]     = (*RequestPublishingCommand)(nil)
	_ gocmd.Commander[ShowDialogMessage]            = (*ShowDialogCommand)(nil)
	_ gocmd.Commander[CancelAuthenticationMessage]  = (*CancelAuthenticationCommand)(nil)
	_ gocmd.Commander[CancelPublishingMessage]      = (*CancelPublishingCommand)(nil)

	_ WorkflowService = (*core.Service)(nil)
	_ WorkflowService = (core.WorkflowService)(nil)
)
