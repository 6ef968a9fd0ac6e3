package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	EngageErrorBadInput                = "ENGAGE_BAD_INPUT"
	EngageErrorProviderNotEnabled      = "ENGAGE_PROVIDER_NOT_ENABLED"
	EngageErrorOutcomeAlreadyDelivered = "ENGAGE_OUTCOME_ALREADY_DELIVERED"
	EngageErrorInvalidTransition       = "ENGAGE_INVALID_TRANSITION"
	EngageErrorDialogFailed            = "ENGAGE_DIALOG_FAILED"
	EngageErrorServiceClosed           = "ENGAGE_SERVICE_CLOSED"
	EngageErrorNotFound                = "ENGAGE_NOT_FOUND"
	EngageErrorUnauthorized            = "ENGAGE_UNAUTHORIZED"
	EngageErrorConflict                = "ENGAGE_CONFLICT"
	EngageErrorCallbackFailed          = "ENGAGE_CALLBACK_FAILED"
	EngageErrorInternal                = "ENGAGE_INTERNAL_ERROR"
)

// ErrorKind separates the failure families reported to observers.
// Cancellation is not an error and has no kind.
type ErrorKind string

const (
	ErrorKindConfiguration  ErrorKind = "configuration"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindTokenExchange  ErrorKind = "token_exchange"
	ErrorKindPublish        ErrorKind = "publish"
)

// Codes reported in EngageError.Code.
const (
	CodeConfigurationFailed             = "CONFIGURATION_FAILED"
	CodeConfigurationInformationMissing = "CONFIGURATION_INFORMATION_MISSING"
	CodeProviderNotConfigured           = "PROVIDER_NOT_CONFIGURED"
	CodeMissingActivity                 = "MISSING_ACTIVITY"
	CodeDialogShowingFailed             = "DIALOG_SHOWING_FAILED"
	CodeAuthenticationFailed            = "AUTHENTICATION_FAILED"
	CodeTokenURLFailed                  = "TOKEN_URL_FAILED"
	CodePublishFailed                   = "PUBLISH_FAILED"
	CodePublishMissingParameter         = "PUBLISH_MISSING_PARAMETER"
	CodePublishInvalidOAuthToken        = "PUBLISH_INVALID_OAUTH_TOKEN"
	CodePublishDuplicate                = "PUBLISH_DUPLICATE"
	CodePublishCharacterLimit           = "PUBLISH_CHARACTER_LIMIT"
	CodePublishRateLimited              = "PUBLISH_RATE_LIMITED"
)

// EngageError is a failure handed to an observer. It is immutable once
// created by the workflow driver.
type EngageError struct {
	Kind     ErrorKind
	Code     string
	Message  string
	Provider Provider
	cause    error
}

func NewEngageError(kind ErrorKind, code string, message string, cause error) *EngageError {
	code = strings.TrimSpace(code)
	if code == "" {
		code = defaultCodeForKind(kind)
	}
	message = strings.TrimSpace(message)
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &EngageError{Kind: kind, Code: code, Message: message, cause: cause}
}

func NewConfigurationError(code string, message string, cause error) *EngageError {
	return NewEngageError(ErrorKindConfiguration, code, message, cause)
}

func NewAuthenticationError(message string, cause error) *EngageError {
	return NewEngageError(ErrorKindAuthentication, CodeAuthenticationFailed, message, cause)
}

func NewTokenExchangeError(message string, cause error) *EngageError {
	return NewEngageError(ErrorKindTokenExchange, CodeTokenURLFailed, message, cause)
}

func NewPublishError(code string, message string, cause error) *EngageError {
	return NewEngageError(ErrorKindPublish, code, message, cause)
}

func (e *EngageError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *EngageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// WithProvider returns a copy tagged with provider.
func (e *EngageError) WithProvider(provider Provider) *EngageError {
	if e == nil {
		return nil
	}
	out := *e
	out.Provider = provider
	return &out
}

func (e *EngageError) clone() *EngageError {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

// Envelope maps the error onto a go-errors envelope for transports and logs.
func (e *EngageError) Envelope() *goerrors.Error {
	if e == nil {
		return nil
	}
	category := goerrors.CategoryOperation
	switch e.Kind {
	case ErrorKindAuthentication:
		category = goerrors.CategoryAuth
	case ErrorKindTokenExchange, ErrorKindPublish:
		category = goerrors.CategoryExternal
	}
	if e.Code == CodePublishRateLimited {
		category = goerrors.CategoryRateLimit
	}
	var rich *goerrors.Error
	if e.cause != nil {
		rich = goerrors.Wrap(e.cause, category, e.Error())
	} else {
		rich = goerrors.New(e.Error(), category)
	}
	metadata := map[string]any{
		"kind": string(e.Kind),
		"code": e.Code,
	}
	if e.Provider != "" {
		metadata["provider"] = string(e.Provider)
	}
	rich.WithMetadata(metadata)
	return ensureEngageErrorEnvelope(rich.WithTextCode(strings.ToUpper("ENGAGE_" + e.Code)))
}

func defaultCodeForKind(kind ErrorKind) string {
	switch kind {
	case ErrorKindConfiguration:
		return CodeConfigurationFailed
	case ErrorKindAuthentication:
		return CodeAuthenticationFailed
	case ErrorKindTokenExchange:
		return CodeTokenURLFailed
	case ErrorKindPublish:
		return CodePublishFailed
	default:
		return CodeConfigurationFailed
	}
}

var (
	ErrOutcomeAlreadyDelivered = errors.New("core: outcome already delivered")
	ErrInvalidTransition       = errors.New("core: invalid state transition")
	ErrServiceClosed           = errors.New("core: service is closed")
	ErrNotificationNotFound    = errors.New("core: notification not found")
)

func engageErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEngageErrorEnvelope(richErr)
	}
	var payload *EngageError
	if errors.As(err, &payload) {
		return payload.Envelope()
	}

	switch {
	case errors.Is(err, ErrOutcomeAlreadyDelivered):
		return newEngageLibraryError(err, goerrors.CategoryConflict, EngageErrorOutcomeAlreadyDelivered)
	case errors.Is(err, ErrInvalidTransition):
		return newEngageLibraryError(err, goerrors.CategoryConflict, EngageErrorInvalidTransition)
	case errors.Is(err, ErrServiceClosed):
		return newEngageLibraryError(err, goerrors.CategoryOperation, EngageErrorServiceClosed)
	case errors.Is(err, ErrNotificationNotFound):
		return newEngageLibraryError(err, goerrors.CategoryNotFound, EngageErrorNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not enabled"):
		return newEngageLibraryError(err, goerrors.CategoryAuthz, EngageErrorProviderNotEnabled)
	case strings.Contains(msg, "transition"):
		return newEngageLibraryError(err, goerrors.CategoryConflict, EngageErrorInvalidTransition)
	case strings.Contains(msg, "not found"):
		return newEngageLibraryError(err, goerrors.CategoryNotFound, EngageErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"),
		strings.Contains(msg, "unsupported"), strings.Contains(msg, "must"):
		return newEngageLibraryError(err, goerrors.CategoryBadInput, EngageErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEngageErrorEnvelope(mapped)
}

func newEngageLibraryError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureEngageErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func ensureEngageErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = engageHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultEngageTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultEngageTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return EngageErrorBadInput
	case goerrors.CategoryNotFound:
		return EngageErrorNotFound
	case goerrors.CategoryAuth:
		return EngageErrorUnauthorized
	case goerrors.CategoryAuthz:
		return EngageErrorProviderNotEnabled
	case goerrors.CategoryConflict:
		return EngageErrorInvalidTransition
	case goerrors.CategoryOperation:
		return EngageErrorDialogFailed
	default:
		return EngageErrorInternal
	}
}

func engageHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func conflictError(source error, message string, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryConflict, message).
		WithCode(http.StatusConflict).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func badInputError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(EngageErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
