package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        *ProviderRegistry
	journal         NotificationJournal
	deliveryHooks   []DeliveryHook
	clock           Clock
	idGenerator     IDGenerator
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithProviderRegistry(registry *ProviderRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

// WithJournal replaces the in-memory journal, typically with a SQL store.
func WithJournal(journal NotificationJournal) Option {
	return func(b *serviceBuilder) {
		b.journal = journal
	}
}

// WithDeliveryHook registers a hook that runs after every notification has
// been handed to observers.
func WithDeliveryHook(hook DeliveryHook) Option {
	return func(b *serviceBuilder) {
		if hook != nil {
			b.deliveryHooks = append(b.deliveryHooks, hook)
		}
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("engage", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewProviderRegistry(),
		clock:           defaultClock,
		idGenerator:     defaultIDGenerator,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return engageErrorMapper(err)
}

func defaultClock() time.Time {
	return time.Now().UTC()
}

func defaultIDGenerator() string {
	return uuid.NewString()
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, mostly for tests and embedding
// hosts that already parsed their configuration.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](normalizeRawDurations(raw),
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](normalizeRawDurations(merged.Value),
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap keeps zero values out of non-default layers so they do not
// shadow lower layers. Durations travel as int64 nanoseconds.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.BacklogWarning != 0 {
		delivery["backlog_warning"] = cfg.Delivery.BacklogWarning
	}
	if includeZero || cfg.Delivery.SlowObserverThreshold != 0 {
		delivery["slow_observer_threshold"] = int64(cfg.Delivery.SlowObserverThreshold)
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	authentication := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Authentication.TokenURL) != "" {
		authentication["token_url"] = cfg.Authentication.TokenURL
	}
	if includeZero || cfg.Authentication.Timeout != 0 {
		authentication["timeout"] = int64(cfg.Authentication.Timeout)
	}
	if len(authentication) > 0 {
		layer["authentication"] = authentication
	}

	publishing := map[string]any{}
	if includeZero || cfg.Publishing.Timeout != 0 {
		publishing["timeout"] = int64(cfg.Publishing.Timeout)
	}
	if includeZero || cfg.Publishing.ItemDrainTimeout != 0 {
		publishing["item_drain_timeout"] = int64(cfg.Publishing.ItemDrainTimeout)
	}
	if len(publishing) > 0 {
		layer["publishing"] = publishing
	}

	if includeZero || len(cfg.Providers.Enabled) > 0 {
		layer["providers"] = map[string]any{
			"enabled": append([]string(nil), cfg.Providers.Enabled...),
		}
	}
	return layer
}

var durationKeys = map[string][]string{
	"delivery":       {"slow_observer_threshold"},
	"authentication": {"timeout"},
	"publishing":     {"timeout", "item_drain_timeout"},
}

// normalizeRawDurations turns duration strings such as "30s" into
// nanosecond counts before decoding.
func normalizeRawDurations(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return raw
	}
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		out[key] = value
	}
	for section, keys := range durationKeys {
		nested, ok := out[section].(map[string]any)
		if !ok {
			continue
		}
		copied := make(map[string]any, len(nested))
		for key, value := range nested {
			copied[key] = value
		}
		for _, key := range keys {
			text, ok := copied[key].(string)
			if !ok {
				continue
			}
			if parsed, err := time.ParseDuration(strings.TrimSpace(text)); err == nil {
				copied[key] = int64(parsed)
			}
		}
		out[section] = copied
	}
	return out
}
