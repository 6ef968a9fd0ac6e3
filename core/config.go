package core

import (
	"fmt"
	"strings"
	"time"
)

type DeliveryConfig struct {
	// BacklogWarning logs a warning once the undelivered queue grows past
	// this many notifications. Zero disables the warning.
	BacklogWarning        int           `koanf:"backlog_warning" mapstructure:"backlog_warning"`
	SlowObserverThreshold time.Duration `koanf:"slow_observer_threshold" mapstructure:"slow_observer_threshold"`
}

type AuthenticationConfig struct {
	TokenURL string        `koanf:"token_url" mapstructure:"token_url"`
	Timeout  time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type PublishingConfig struct {
	Timeout          time.Duration `koanf:"timeout" mapstructure:"timeout"`
	ItemDrainTimeout time.Duration `koanf:"item_drain_timeout" mapstructure:"item_drain_timeout"`
}

type ProvidersConfig struct {
	// Enabled restricts authentication to the listed providers. Empty means
	// every provider is allowed.
	Enabled []string `koanf:"enabled" mapstructure:"enabled"`
}

type Config struct {
	ServiceName    string               `koanf:"service_name" mapstructure:"service_name"`
	Delivery       DeliveryConfig       `koanf:"delivery" mapstructure:"delivery"`
	Authentication AuthenticationConfig `koanf:"authentication" mapstructure:"authentication"`
	Publishing     PublishingConfig     `koanf:"publishing" mapstructure:"publishing"`
	Providers      ProvidersConfig      `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "engage",
		Delivery: DeliveryConfig{
			BacklogWarning:        1024,
			SlowObserverThreshold: 250 * time.Millisecond,
		},
		Publishing: PublishingConfig{
			ItemDrainTimeout: 30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.BacklogWarning < 0 {
		return fmt.Errorf("core: delivery.backlog_warning must be >= 0")
	}
	if c.Delivery.SlowObserverThreshold < 0 {
		return fmt.Errorf("core: delivery.slow_observer_threshold must be >= 0")
	}
	if c.Authentication.Timeout < 0 {
		return fmt.Errorf("core: authentication.timeout must be >= 0")
	}
	if c.Publishing.Timeout < 0 {
		return fmt.Errorf("core: publishing.timeout must be >= 0")
	}
	if c.Publishing.ItemDrainTimeout < 0 {
		return fmt.Errorf("core: publishing.item_drain_timeout must be >= 0")
	}
	if err := validateOptionalURL("authentication.token_url", c.Authentication.TokenURL); err != nil {
		return err
	}
	for _, name := range c.Providers.Enabled {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("core: providers.enabled entries must not be empty")
		}
	}
	return nil
}

// ProviderEnabled reports whether authentication may start on provider.
func (c Config) ProviderEnabled(provider Provider) bool {
	if len(c.Providers.Enabled) == 0 {
		return true
	}
	for _, name := range c.Providers.Enabled {
		if SameProvider(Provider(name), provider) {
			return true
		}
	}
	return false
}
