package engage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-engage/command"
	"github.com/goliatone/go-engage/core"
)

// ProviderPack is a named set of provider descriptors contributed by a
// downstream module, for example a private identity provider.
type ProviderPack struct {
	Name        string
	Descriptors []core.ProviderDescriptor
}

type CommandQueryBundleFactory func(service command.WorkflowService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("engage: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("engage: provider pack name is required")
	}
	if len(pack.Descriptors) == 0 {
		return fmt.Errorf("engage: provider pack %q has no providers", name)
	}
	for _, descriptor := range pack.Descriptors {
		if core.NormalizeProvider(string(descriptor.Name)) == "" {
			return fmt.Errorf("engage: provider pack %q contains an unnamed provider", name)
		}
	}

	normalized := ProviderPack{
		Name:        name,
		Descriptors: append([]core.ProviderDescriptor(nil), pack.Descriptors...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("engage: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("engage: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("engage: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("engage: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("engage: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks registers every pack descriptor, in pack name order, into
// the given catalog. The first conflict stops the run.
func (h *ExtensionHooks) ApplyProviderPacks(registry *core.ProviderRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("engage: provider registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, descriptor := range pack.Descriptors {
			if err := registry.Register(descriptor); err != nil {
				return fmt.Errorf("engage: provider pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service command.WorkflowService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("engage: workflow service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:        pack.Name,
			Descriptors: append([]core.ProviderDescriptor(nil), pack.Descriptors...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
