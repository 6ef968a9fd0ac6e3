package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the workflow driver boundary. Drivers request attempts and
// sessions from it and report outcomes through them; the service turns those
// outcomes into ordered notifications for every registered observer.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        *ProviderRegistry
	journal         NotificationJournal
	hooks           *DeliveryHookCoordinator
	clock           Clock
	idGenerator     IDGenerator

	observers  *observerRegistry
	dispatcher *dispatcher
	latch      configurationLatch

	mu       sync.Mutex
	closed   bool
	attempts map[string]*AuthAttempt
	sessions map[string]*PublishSession
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Registry        *ProviderRegistry
	Journal         NotificationJournal
	DeliveryHooks   *DeliveryHookCoordinator
	Clock           Clock
	IDGenerator     IDGenerator
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("engage", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("engage"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.journal == nil {
		builder.journal = NewMemoryJournal()
	}
	if builder.clock == nil {
		builder.clock = defaultClock
	}
	if builder.idGenerator == nil {
		builder.idGenerator = defaultIDGenerator
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	hooks := NewDeliveryHookCoordinator()
	hooks.RegisterAfterDelivery(JournalDeliveryHook(builder.journal))
	for _, hook := range builder.deliveryHooks {
		hooks.RegisterAfterDelivery(hook)
	}

	svc := &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		registry:        builder.registry,
		journal:         builder.journal,
		hooks:           hooks,
		clock:           builder.clock,
		idGenerator:     builder.idGenerator,
		observers:       newObserverRegistry(),
		attempts:        map[string]*AuthAttempt{},
		sessions:        map[string]*PublishSession{},
	}
	svc.dispatcher = newDispatcher(svc.deliver, logger, finalConfig.Delivery.BacklogWarning)
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Registry:        s.registry,
		Journal:         s.journal,
		DeliveryHooks:   s.hooks,
		Clock:           s.clock,
		IDGenerator:     s.idGenerator,
	}
}

func (s *Service) Journal() NotificationJournal {
	if s == nil {
		return nil
	}
	return s.journal
}

func (s *Service) Providers() *ProviderRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

// AddObserver registers an observer for every observer interface it
// implements. Observers are notified in registration order.
func (s *Service) AddObserver(observer any) (Registration, error) {
	registration, err := s.observers.add(observer)
	if err != nil {
		return Registration{}, s.mapError(err)
	}
	return registration, nil
}

func (s *Service) RequestAuthentication(ctx context.Context, req AuthenticationRequest) (attempt *AuthAttempt, err error) {
	startedAt := time.Now().UTC()
	provider := trimProvider(req.Provider)
	fields := map[string]any{
		"scope":    string(ScopeAuthentication),
		"provider": string(provider),
	}
	defer func() {
		if attempt != nil {
			fields["attempt_id"] = attempt.id
		}
		s.observeOperation(ctx, startedAt, "request_authentication", err, fields)
	}()

	if err = s.ensureOpen(); err != nil {
		return nil, err
	}
	if err = s.checkConfiguration(ctx, DialogAuthentication); err != nil {
		return nil, err
	}
	if provider != "" && (!s.config.ProviderEnabled(provider) || !s.registry.SupportsAuthentication(provider)) {
		payload := NewConfigurationError(CodeProviderNotConfigured,
			fmt.Sprintf("provider %s is not enabled for authentication", provider), nil).WithProvider(provider)
		err = s.showFailure(ctx, DialogAuthentication, payload, goerrors.CategoryAuthz, EngageErrorProviderNotEnabled)
		return nil, err
	}
	tokenURL := strings.TrimSpace(req.TokenURL)
	if tokenURL == "" {
		tokenURL = strings.TrimSpace(s.config.Authentication.TokenURL)
	}
	if validateErr := validateOptionalURL("token url", tokenURL); validateErr != nil {
		payload := NewConfigurationError(CodeDialogShowingFailed, validateErr.Error(), validateErr)
		err = s.showFailure(ctx, DialogAuthentication, payload, goerrors.CategoryBadInput, EngageErrorBadInput)
		return nil, err
	}

	attempt = newAuthAttempt(s, provider, tokenURL)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		attempt = nil
		err = s.mapError(ErrServiceClosed)
		return nil, err
	}
	s.attempts[attempt.id] = attempt
	s.mu.Unlock()
	attempt.startTimer(s.config.Authentication.Timeout)
	return attempt, nil
}

func (s *Service) RequestPublishing(ctx context.Context, req PublishingRequest) (session *PublishSession, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"scope": string(ScopePublishing),
	}
	defer func() {
		if session != nil {
			fields["session_id"] = session.id
		}
		s.observeOperation(ctx, startedAt, "request_publishing", err, fields)
	}()

	if err = s.ensureOpen(); err != nil {
		return nil, err
	}
	if err = s.checkConfiguration(ctx, DialogSocialPublishing); err != nil {
		return nil, err
	}
	if req.Activity == nil {
		payload := NewConfigurationError(CodeMissingActivity, "an activity is required to publish", nil)
		err = s.showFailure(ctx, DialogSocialPublishing, payload, goerrors.CategoryBadInput, EngageErrorBadInput)
		return nil, err
	}
	fields["activity_action"] = req.Activity.Action
	if validateErr := req.Activity.Validate(); validateErr != nil {
		payload := NewConfigurationError(CodeDialogShowingFailed, validateErr.Error(), validateErr)
		err = s.showFailure(ctx, DialogSocialPublishing, payload, goerrors.CategoryBadInput, EngageErrorBadInput)
		return nil, err
	}

	session = newPublishSession(s, *req.Activity)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		session = nil
		err = s.mapError(ErrServiceClosed)
		return nil, err
	}
	s.sessions[session.id] = session
	s.mu.Unlock()
	session.startTimer(s.config.Publishing.Timeout)
	return session, nil
}

// ShowDialog is the entry point for presenting a workflow UI without
// starting an attempt. It fails, and notifies configuration observers, while
// a background configuration error is latched.
func (s *Service) ShowDialog(ctx context.Context, req DialogRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"scope":       string(ScopeConfiguration),
		"dialog_kind": string(req.Kind),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "show_dialog", err, fields)
	}()

	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = s.ensureOpen(); err != nil {
		return err
	}
	return s.checkConfiguration(ctx, req.Kind)
}

// ReportConfigurationError latches a background configuration failure. No
// observer hears about it until a dialog is requested.
func (s *Service) ReportConfigurationError(err *EngageError) {
	if s == nil || err == nil {
		return
	}
	s.latch.report(err)
	s.logWarn(context.Background(), "configuration failed", map[string]any{
		"error_code": err.Code,
		"error":      err.Error(),
	})
}

// ConfigurationSucceeded clears a latched configuration failure.
func (s *Service) ConfigurationSucceeded() {
	if s == nil {
		return
	}
	s.latch.clear()
	s.logDebug(context.Background(), "configuration succeeded", nil)
}

// CancelAuthentication cancels every pending attempt and reports how many
// were canceled.
func (s *Service) CancelAuthentication(ctx context.Context) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	canceled := 0
	for _, attempt := range s.pendingAttempts() {
		if attempt.State() != AttemptStatePending {
			continue
		}
		if err := attempt.Cancel(ctx); err == nil {
			canceled++
		}
	}
	return canceled, nil
}

// CancelPublishing cancels every pending session. Sessions already closing
// are left to complete.
func (s *Service) CancelPublishing(ctx context.Context) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	canceled := 0
	for _, session := range s.pendingSessions() {
		if session.State() != SessionStatePending {
			continue
		}
		if err := session.Cancel(ctx); err == nil {
			canceled++
		}
	}
	return canceled, nil
}

func (s *Service) Attempt(id string) (*AuthAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[strings.TrimSpace(id)]
	return attempt, ok
}

func (s *Service) Session(id string) (*PublishSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[strings.TrimSpace(id)]
	return session, ok
}

// Flush blocks until every notification queued before the call has been
// delivered. It must not be called from an observer.
func (s *Service) Flush(ctx context.Context) error {
	if err := s.dispatcher.flush(ctx); err != nil {
		return s.mapError(err)
	}
	return nil
}

// Close ends every pending attempt and session, delivers what is queued and
// stops the dispatcher. Later requests fail with ENGAGE_SERVICE_CLOSED.
func (s *Service) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.mapError(s.dispatcher.stop(ctx))
	}
	s.closed = true
	s.mu.Unlock()

	for _, attempt := range s.pendingAttempts() {
		if attempt.State() == AttemptStatePending {
			_ = attempt.Cancel(ctx)
		}
	}
	for _, session := range s.pendingSessions() {
		session.shutdown(ctx)
	}
	if err := s.dispatcher.stop(ctx); err != nil {
		return s.mapError(err)
	}
	s.logInfo(ctx, "engage service closed", nil)
	return nil
}

func (s *Service) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.mapError(ErrServiceClosed)
	}
	return nil
}

func (s *Service) checkConfiguration(ctx context.Context, kind DialogKind) error {
	latched := s.latch.current()
	if latched == nil {
		return nil
	}
	return s.showFailure(ctx, kind, latched, goerrors.CategoryOperation, EngageErrorDialogFailed)
}

// showFailure notifies configuration observers that a dialog could not be
// shown and returns the matching library error.
func (s *Service) showFailure(
	ctx context.Context,
	kind DialogKind,
	payload *EngageError,
	category goerrors.Category,
	textCode string,
) error {
	notification := s.stampNotification(Notification{
		Kind:     NotificationDialogFailedToShow,
		Provider: payload.Provider,
		Error:    payload,
	}, s.idGenerator())
	if _, err := s.dispatcher.enqueue(ctx, notification); err != nil {
		return s.mapError(err)
	}
	failure := goerrors.Wrap(payload, category, "core: dialog failed to show").
		WithCode(engageHTTPStatus(category)).
		WithTextCode(textCode)
	failure.WithMetadata(map[string]any{
		"dialog_kind":     string(kind),
		"code":            payload.Code,
		"notification_id": notification.ID,
	})
	return s.mapError(failure)
}

func (s *Service) stampNotification(notification Notification, scopeID string) Notification {
	notification.ID = s.idGenerator()
	notification.ScopeID = scopeID
	notification.OccurredAt = s.clock()
	return notification
}

// deliver runs on the dispatcher goroutine only.
func (s *Service) deliver(ctx context.Context, notification Notification) {
	startedAt := time.Now()
	if err := s.hooks.ExecuteBeforeDelivery(ctx, notification); err != nil {
		s.logWarn(ctx, "delivery hook failed", mergeFields(notification.Fields(), map[string]any{"error": err.Error()}))
	}
	observers := s.observers.snapshot(notification.Scope())
	panics := 0
	for _, observer := range observers {
		if !s.notifyObserver(ctx, observer, notification) {
			panics++
		}
	}
	if err := s.hooks.ExecuteAfterDelivery(ctx, notification); err != nil {
		s.logWarn(ctx, "delivery hook failed", mergeFields(notification.Fields(), map[string]any{"error": err.Error()}))
	}
	s.observeNotification(ctx, startedAt, notification, len(observers), panics)
}

func (s *Service) notifyObserver(ctx context.Context, observer observerEntry, notification Notification) (ok bool) {
	startedAt := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			ok = false
			s.recordCounter(ctx, MetricNotificationPanic, 1, map[string]string{"kind": string(notification.Kind)})
			s.logError(ctx, "observer panicked", mergeFields(notification.Fields(), map[string]any{
				"observer_id": observer.id,
				"panic":       fmt.Sprint(recovered),
			}))
			return
		}
		threshold := s.config.Delivery.SlowObserverThreshold
		if elapsed := time.Since(startedAt); threshold > 0 && elapsed > threshold {
			s.logWarn(ctx, "slow observer", mergeFields(notification.Fields(), map[string]any{
				"observer_id": observer.id,
				"elapsed_ms":  elapsed.Milliseconds(),
			}))
		}
	}()
	observer.notify(ctx, notification)
	return true
}

func (s *Service) pendingAttempts() []*AuthAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AuthAttempt, 0, len(s.attempts))
	for _, attempt := range s.attempts {
		out = append(out, attempt)
	}
	return out
}

func (s *Service) pendingSessions() []*PublishSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PublishSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *Service) releaseAttempt(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
}

func (s *Service) releaseSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	out := cloneFields(base)
	for key, value := range extra {
		out[key] = value
	}
	return out
}
