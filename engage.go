package engage

import "github.com/goliatone/go-engage/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Delegate = core.Delegate
type DelegateFuncs = core.DelegateFuncs
type ConfigurationObserver = core.ConfigurationObserver
type AuthenticationObserver = core.AuthenticationObserver
type PublishingObserver = core.PublishingObserver
type Registration = core.Registration

type AuthenticationRequest = core.AuthenticationRequest
type PublishingRequest = core.PublishingRequest
type DialogRequest = core.DialogRequest

type AuthAttempt = core.AuthAttempt
type PublishSession = core.PublishSession
type PublishItem = core.PublishItem

type AuthInfo = core.AuthInfo
type Activity = core.Activity
type EngageError = core.EngageError
type TokenURLResult = core.TokenURLResult
type ResponseHeaders = core.ResponseHeaders

type Notification = core.Notification
type NotificationJournal = core.NotificationJournal
type NotificationFilter = core.NotificationFilter
type NotificationPage = core.NotificationPage
type OutcomeReader = core.OutcomeReader
type JournalRetentionPolicy = core.JournalRetentionPolicy

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithProviderRegistry = core.WithProviderRegistry
	WithJournal          = core.WithJournal
	WithDeliveryHook     = core.WithDeliveryHook
	WithClock            = core.WithClock
	WithIDGenerator      = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
