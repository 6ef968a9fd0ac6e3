package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-engage/core"
)

func TestShowDialogMessage_ValidateReturnsRichError(t *testing.T) {
	for name, msg := range map[string]ShowDialogMessage{
		"missing kind": {},
		"unknown kind": {Request: core.DialogRequest{Kind: "share_sheet"}},
	} {
		err := msg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}

		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryValidation {
			t.Fatalf("%s: expected validation category, got %q", name, rich.Category)
		}
		if rich.TextCode != core.EngageErrorBadInput {
			t.Fatalf("%s: expected %q text code, got %q", name, core.EngageErrorBadInput, rich.TextCode)
		}
	}

	if err := (ShowDialogMessage{Request: core.DialogRequest{Kind: core.DialogAuthentication}}).Validate(); err != nil {
		t.Fatalf("expected authentication dialog to be valid, got %v", err)
	}
}

func TestRequestAuthenticationMessage_Validate(t *testing.T) {
	if err := (RequestAuthenticationMessage{}).Validate(); err != nil {
		t.Fatalf("expected empty request to be valid, got %v", err)
	}
	if err := (RequestAuthenticationMessage{Request: core.AuthenticationRequest{Provider: "   "}}).Validate(); err == nil {
		t.Fatalf("expected blank provider to be rejected")
	}
	if err := (RequestAuthenticationMessage{Request: core.AuthenticationRequest{Provider: "live id"}}).Validate(); err == nil {
		t.Fatalf("expected multi-word provider to be rejected")
	}
}

func TestRequestAuthenticationCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *RequestAuthenticationCommand
	err := cmd.Execute(context.Background(), RequestAuthenticationMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.EngageErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.EngageErrorInternal, rich.TextCode)
	}
}
